package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/damku999/trustengine/internal/engine/domain"
	"github.com/damku999/trustengine/pkg/cryptox"
)

// HashSourceVerifier proves a password against a hash fetched from the
// surrounding application. The plaintext never leaves this process:
// the app serves the subject's stored argon2id hash and verification
// happens locally.
type HashSourceVerifier struct {
	URL    string
	Client *http.Client
}

func NewHashSourceVerifier(url string) *HashSourceVerifier {
	return &HashSourceVerifier{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

type hashSourceRequest struct {
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
}

type hashSourceResponse struct {
	PasswordHash string `json:"password_hash"`
}

func (v *HashSourceVerifier) VerifyPassword(ctx context.Context, subject domain.Subject, password string) error {
	body, err := json.Marshal(hashSourceRequest{
		SubjectType: string(subject.Type),
		SubjectID:   subject.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to encode hash request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build hash request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch password hash: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hash source returned status %d", resp.StatusCode)
	}

	var out hashSourceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode hash response: %w", err)
	}
	if out.PasswordHash == "" {
		return cryptox.ErrPasswordMismatch
	}

	return cryptox.VerifyPassword(password, out.PasswordHash)
}
