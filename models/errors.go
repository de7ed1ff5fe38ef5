package models

import "errors"

// Structural errors reject the call before any mutation.
var (
	ErrUnknownCA            = errors.New("unknown certificate authority")
	ErrUnknownCertificate   = errors.New("certificate not found")
	ErrUnknownRequest       = errors.New("signature request not found")
	ErrUnknownSignatory     = errors.New("signatory not found")
	ErrAmbiguousOrder       = errors.New("duplicate signatory order index")
	ErrRequestAlreadyCompleted = errors.New("request already completed")
	ErrRequestNotDraft      = errors.New("request is not in draft")
	ErrFingerprintCollision = errors.New("certificate fingerprint collision")
)

// Temporal errors reflect state that changed between client intent and
// server validation; the caller retries with fresh state.
var (
	ErrRevokedCA            = errors.New("issuing CA is revoked or expired")
	ErrIssuerNotActive      = errors.New("issuing CA is not active")
	ErrInvalidChain         = errors.New("certificate chain is invalid")
	ErrInvalidCertificate   = errors.New("certificate failed chain validation")
	ErrDocumentHashMismatch = errors.New("document hash does not match the request")
	ErrRequestClosed        = errors.New("request is expired, declined or cancelled")
	ErrConcurrentUpdate     = errors.New("request was modified concurrently")
)

// Policy errors indicate a protocol violation by the caller.
var (
	ErrOutOfOrder          = errors.New("earlier signatories have not signed yet")
	ErrAlreadyResolved     = errors.New("signatory already signed or declined")
	ErrNotSent             = errors.New("request has not been sent")
	ErrNotOwner            = errors.New("only the request owner may do this")
	ErrMixedSignatureTypes = errors.New("mixed signature strengths are not allowed on this request")
)
