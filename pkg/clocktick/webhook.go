package clocktick

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"

	"clocktick/pkg/codec"
	"clocktick/pkg/logx"
	"clocktick/pkg/route"
	"clocktick/pkg/sigcheck"
)

// Signature headers set by the scheduling service on every callback.
const (
	HeaderSignature = "X-Signature-Ed25519"
	HeaderTimestamp = "X-Signature-Timestamp"
)

type inboundBody struct {
	Type          string `json:"type"`
	EncryptedData string `json:"encrypted_data"`
}

// ServeHTTP accepts one job callback: authenticate, decrypt, decode,
// dispatch. Responses: 204 dispatched, 400 malformed credentials, body or
// payload, 401 invalid or stale signature, 404 unknown route, 500 handler
// failure. Error bodies never describe why decryption failed.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.log.Warn("webhook body read failed", logx.Err(err))
		http.Error(w, "failed to read body", http.StatusInternalServerError)
		return
	}

	err = s.verifier.Verify(body, r.Header.Get(HeaderTimestamp), r.Header.Get(HeaderSignature))
	if err != nil {
		s.log.Warn("webhook rejected", logx.Err(err))
		switch {
		case errors.Is(err, sigcheck.ErrMissingCredentials),
			errors.Is(err, sigcheck.ErrMalformedSignature),
			errors.Is(err, sigcheck.ErrMalformedTimestamp):
			http.Error(w, "bad signature headers", http.StatusBadRequest)
		default:
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
		return
	}

	var in inboundBody
	if err := json.Unmarshal(body, &in); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	plaintext, err := s.cipher.Open(in.EncryptedData)
	if err != nil {
		// 400, not 500: the payload is at fault, and the cause stays
		// server-side.
		s.log.Warn("webhook payload rejected", logx.String("job_type", in.Type), logx.Err(err))
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	rawArgs, err := codec.DecodeArgs(plaintext)
	if err != nil {
		s.log.Warn("webhook payload rejected", logx.String("job_type", in.Type), logx.Err(err))
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	raws := make([][]byte, len(rawArgs))
	for i, raw := range rawArgs {
		raws[i] = raw
	}

	err = s.tree.Dispatch(r.Context(), in.Type, raws, func(raw []byte, t reflect.Type) (reflect.Value, error) {
		return codec.DecodeInto(raw, t)
	})
	switch {
	case err == nil:
		s.log.Debug("job dispatched", logx.String("job_type", in.Type))
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, route.ErrRouteNotFound):
		http.Error(w, "route not found", http.StatusNotFound)
	case errors.Is(err, route.ErrArityMismatch), errors.Is(err, route.ErrBadArguments):
		s.log.Warn("webhook arguments rejected", logx.String("job_type", in.Type), logx.Err(err))
		http.Error(w, "bad arguments", http.StatusBadRequest)
	default:
		// Handler failure: already reported through the failure hook.
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

var _ http.Handler = (*Server)(nil)
