// Package artifact defines the canonical representation of trust artifacts
// (DIDs, verifiable credentials, and documents) mirrored from the
// QuantumTrust service, together with their kind and status vocabularies.
package artifact

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind identifies which collection an artifact belongs to and which remote
// endpoints apply to it.
type Kind string

const (
	KindDID        Kind = "did"
	KindCredential Kind = "credential"
	KindDocument   Kind = "document"
)

// Kinds returns all artifact kinds in their fixed, stable order.
func Kinds() []Kind {
	return []Kind{KindDID, KindCredential, KindDocument}
}

func (k Kind) String() string {
	return string(k)
}

// Path returns the URL path segment the remote service uses for this kind.
func (k Kind) Path() string {
	switch k {
	case KindDID:
		return "dids"
	case KindCredential:
		return "credentials"
	case KindDocument:
		return "documents"
	default:
		return string(k)
	}
}

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "did":
		return KindDID, nil
	case "credential":
		return KindCredential, nil
	case "document":
		return KindDocument, nil
	default:
		return "", fmt.Errorf("invalid artifact kind: %s", s)
	}
}

// Status is the lifecycle state of an artifact as asserted by the remote
// service. Pending exists only transiently on optimistic create before the
// server confirms.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusVerified Status = "verified"
	StatusInvalid  Status = "invalid"
	StatusRevoked  Status = "revoked"
	StatusRejected Status = "rejected"
)

func (s Status) String() string {
	return string(s)
}

// ParseStatus converts a string to a Status.
func ParseStatus(str string) (Status, error) {
	switch strings.ToLower(str) {
	case "pending":
		return StatusPending, nil
	case "active":
		return StatusActive, nil
	case "verified":
		return StatusVerified, nil
	case "invalid":
		return StatusInvalid, nil
	case "revoked":
		return StatusRevoked, nil
	case "rejected":
		return StatusRejected, nil
	default:
		return "", fmt.Errorf("invalid artifact status: %s", str)
	}
}

// Terminal reports whether the status admits no further mutation besides
// deletion. Invalid is deliberately not terminal: a failed or negative
// verification can still be followed by a revoke.
func (s Status) Terminal() bool {
	return s == StatusRevoked || s == StatusRejected
}

// VerificationDetail is the kind-specific payload attached to an artifact
// after a successful verify operation.
type VerificationDetail struct {
	Method    string    `json:"method"`
	TxHash    string    `json:"txHash,omitempty"`
	Purpose   string    `json:"purpose,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// ShareGrant records one recipient the artifact has been shared with.
type ShareGrant struct {
	Recipient   string    `json:"recipient"`
	Permissions []string  `json:"permissions"`
	GrantedAt   time.Time `json:"grantedAt"`
}

// Artifact is the client-side mirror of one remote trust artifact. The id is
// assigned by the remote service and immutable; every other field is replaced
// wholesale whenever the service returns an updated representation.
type Artifact struct {
	ID                 string              `json:"id"`
	Kind               Kind                `json:"kind"`
	Status             Status              `json:"status"`
	Name               string              `json:"name,omitempty"`
	Owner              string              `json:"owner,omitempty"`
	Issuer             string              `json:"issuer,omitempty"`
	Holder             string              `json:"holder,omitempty"`
	Payload            json.RawMessage     `json:"payload,omitempty"`
	VerificationDetail *VerificationDetail `json:"verificationDetail,omitempty"`
	Shares             []ShareGrant        `json:"shares,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
	ExpiresAt          *time.Time          `json:"expiresAt,omitempty"`
}

// Expired reports whether the artifact carries an expiry in the past. The
// store never mutates state based on expiry; the remote service is
// authoritative.
func (a *Artifact) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && a.ExpiresAt.Before(now)
}

// VerifyOptions selects which verification mechanisms the remote service
// should apply. Not every flag applies to every kind; see Normalize.
type VerifyOptions struct {
	UseZKP        bool `json:"useZkp,omitempty"`
	UseBlockchain bool `json:"useBlockchain,omitempty"`
	UseAI         bool `json:"useAI,omitempty"`
}

// Normalize zeroes the flags that do not apply to the given kind: ZKP
// verification exists only for credentials, AI verification only for
// documents.
func (o VerifyOptions) Normalize(k Kind) VerifyOptions {
	if k != KindCredential {
		o.UseZKP = false
	}
	if k != KindDocument {
		o.UseAI = false
	}
	return o
}

// DeleteFlags are the optional side effects a delete may request from the
// remote service.
type DeleteFlags struct {
	Unpin        bool `json:"unpin,omitempty"`
	UpdateAnchor bool `json:"updateAnchor,omitempty"`
}
