// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dtn7/dtn6-go/pkg/bpv6"
)

// inspector is an HTTP service parsing posted bundles.
type inspector struct {
	router *mux.Router
	ctx    *bpv6.CodecContext
}

// canonicalResponse is the reply of /bundle/canonical/{form}.
type canonicalResponse struct {
	Bundle string `json:"bundle,omitempty"`
	Form   string `json:"form,omitempty"`
	Data   string `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

type healthResponse struct {
	Status     string `json:"status"`
	KnownTypes []int  `json:"knownTypes"`
}

func newInspector(router *mux.Router, ctx *bpv6.CodecContext) *inspector {
	insp := &inspector{
		router: router,
		ctx:    ctx,
	}

	insp.router.HandleFunc("/bundle", insp.handleBundle).Methods(http.MethodPost)
	insp.router.HandleFunc("/bundle/canonical/{form}", insp.handleCanonical).Methods(http.MethodPost)
	insp.router.HandleFunc("/health", insp.handleHealth).Methods(http.MethodGet)

	return insp
}

// ServeHTTP is a http.Handler to be bound to a HTTP endpoint.
func (insp *inspector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	insp.router.ServeHTTP(w, r)
}

func (insp *inspector) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write inspector response")
	}
}

// handleBundle processes /bundle POST requests, replying the posted bundle as JSON.
func (insp *inspector) handleBundle(w http.ResponseWriter, r *http.Request) {
	b, err := insp.ctx.ParseBundle(r.Body)
	if err != nil {
		log.WithError(err).Debug("Inspector received an unparsable bundle")
		insp.writeJSON(w, http.StatusBadRequest, canonicalResponse{Error: err.Error()})
		return
	}
	defer releaseBundle(&b)

	log.WithField("bundle", b.ID()).Info("Inspector parsed bundle")
	insp.writeJSON(w, http.StatusOK, b)
}

// handleCanonical processes /bundle/canonical/{form} POST requests, replying
// the hex encoded canonical form.
func (insp *inspector) handleCanonical(w http.ResponseWriter, r *http.Request) {
	resp := canonicalResponse{Form: mux.Vars(r)["form"]}

	var correlator *uint64
	if c := r.URL.Query().Get("correlator"); c != "" {
		v, err := strconv.ParseUint(c, 10, 64)
		if err != nil {
			resp.Error = err.Error()
			insp.writeJSON(w, http.StatusBadRequest, resp)
			return
		}
		correlator = &v
	}

	b, err := insp.ctx.ParseBundle(r.Body)
	if err != nil {
		resp.Error = err.Error()
		insp.writeJSON(w, http.StatusBadRequest, resp)
		return
	}
	defer releaseBundle(&b)
	resp.Bundle = b.ID().String()

	data, err := canonicalForm(insp.ctx, &b, resp.Form, correlator)
	if err != nil {
		resp.Error = err.Error()
		insp.writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	resp.Data = hex.EncodeToString(data)
	insp.writeJSON(w, http.StatusOK, resp)
}

func (insp *inspector) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	for _, code := range insp.ctx.Manager.KnownTypes() {
		resp.KnownTypes = append(resp.KnownTypes, int(code))
	}
	insp.writeJSON(w, http.StatusOK, resp)
}

func (t *tool) serveCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an HTTP bundle inspector",
		Long: `Serves an HTTP inspector: POST /bundle replies the posted bundle as JSON,
POST /bundle/canonical/{strict,mutable} its hex encoded canonical form and
GET /health the known block types.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen == "" {
				listen = t.conf.Inspector.Listen
			}

			httpServer := &http.Server{
				Addr:              listen,
				Handler:           newInspector(mux.NewRouter(), t.ctx),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			errChan := make(chan error, 1)
			go func() { errChan <- httpServer.ListenAndServe() }()

			log.WithField("listen", listen).Info("Started bundle inspector")

			select {
			case err := <-errChan:
				return err

			case <-ctx.Done():
				log.Info("Shutting down..")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overriding inspector.listen")

	return cmd
}
