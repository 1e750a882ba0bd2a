// Package webhook receives signed donation notifications from the payment
// provider and converts them into ledger credits.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bebewat/wrecksshop/service"
)

// signatureHeader carries the hex HMAC-SHA256 of the raw request body.
const signatureHeader = "X-Signature"

// maxBodySize bounds donation payloads.
const maxBodySize = 1 << 16

// donationPayload is the provider's notification body.
type donationPayload struct {
	TransactionID string `json:"transaction_id"`
	PlayerID      string `json:"player_id"`
	Points        int64  `json:"points"`
	DonorName     string `json:"donor_name"`
}

// Server is the donation webhook endpoint.
type Server struct {
	secret []byte
	ledger service.LedgerService
	srv    *http.Server
}

// NewServer builds the webhook server. The secret is shared with the payment
// provider and signs every notification.
func NewServer(addr, secret string, ledger service.LedgerService) *Server {
	s := &Server{
		secret: []byte(secret),
		ledger: ledger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/donation", s.handleDonation)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	log.WithField("addr", s.srv.Addr).Info("Donation webhook listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleDonation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if !s.verifySignature(body, r.Header.Get(signatureHeader)) {
		log.WithField("remote", r.RemoteAddr).Warn("Donation webhook signature rejected")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	var payload donationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if payload.TransactionID == "" || payload.PlayerID == "" || payload.Points <= 0 {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	// Providers redeliver on slow responses and after our restarts; the
	// ledger dedups on the transaction id, so a replay is an ack, not a
	// second credit.
	newBalance, err := s.ledger.CreditDonation(r.Context(), payload.PlayerID, payload.Points, payload.TransactionID)
	if errors.Is(err, service.ErrDuplicateDonation) {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		// Let the provider redeliver.
		log.WithFields(log.Fields{
			"transaction": payload.TransactionID,
			"player":      payload.PlayerID,
		}).WithError(err).Error("Failed to credit donation")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	log.WithFields(log.Fields{
		"transaction": payload.TransactionID,
		"player":      payload.PlayerID,
		"points":      payload.Points,
		"balance":     newBalance,
	}).Info("Donation credited")
	w.WriteHeader(http.StatusOK)
}

// verifySignature checks the hex HMAC-SHA256 of body in constant time.
func (s *Server) verifySignature(body []byte, signature string) bool {
	if len(s.secret) == 0 || signature == "" {
		return false
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), provided)
}
