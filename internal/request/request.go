// Package request defines the clone request value and its content fingerprint.
//
// The fingerprint is the cache key for materialized checkouts and the dedup key
// for job ingress, so its normalization and hash are frozen: changing either
// invalidates every cache entry and every in-flight dedup window. Bump
// fingerprintVersion if a change is ever unavoidable.
package request

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"path"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	ferrors "git.home.luguber.info/inful/repocache/internal/foundation/errors"
)

const fingerprintVersion = "repocache/v1"

// RootMask is the checkout mask selecting the whole tree.
const RootMask = "/"

// RepositoryRequest is an immutable description of one checkout to materialize.
// Values built with New or FromJSON are normalized; the zero value is invalid.
type RepositoryRequest struct {
	repo         string
	commitHash   string
	checkoutMask []string
	submodules   bool
	fingerprint  string
}

type wireRequest struct {
	Repo         string   `json:"repo"`
	CommitHash   string   `json:"commit_hash"`
	CheckoutMask []string `json:"checkout_mask"`
	Submodules   bool     `json:"submodules"`
	Fingerprint  string   `json:"fingerprint,omitempty"`
}

// New validates and normalizes the given fields.
func New(repo, commitHash string, checkoutMask []string, submodules bool) (RepositoryRequest, error) {
	r := RepositoryRequest{
		repo:         NormalizeRepo(repo),
		commitHash:   normalizeCommit(commitHash),
		checkoutMask: normalizeMask(checkoutMask),
		submodules:   submodules,
	}
	if r.repo == "" {
		return RepositoryRequest{}, ferrors.ValidationError("repository identity is required").Build()
	}
	if r.commitHash == "" {
		return RepositoryRequest{}, ferrors.ValidationError("commit reference is required").
			WithContext("repo", r.repo).Build()
	}
	r.fingerprint = digest(r.repo, r.commitHash, r.checkoutMask, r.submodules)
	return r, nil
}

// MustNew is New for statically known input; it panics on invalid fields.
func MustNew(repo, commitHash string, checkoutMask []string, submodules bool) RepositoryRequest {
	r, err := New(repo, commitHash, checkoutMask, submodules)
	if err != nil {
		panic(err)
	}
	return r
}

// FromJSON decodes a job payload. A fingerprint present in the payload must
// match the one derived from the fields.
func FromJSON(data []byte) (RepositoryRequest, error) {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return RepositoryRequest{}, ferrors.WrapError(err, ferrors.CategoryValidation, "decode repository request").Build()
	}
	r, err := New(w.Repo, w.CommitHash, w.CheckoutMask, w.Submodules)
	if err != nil {
		return RepositoryRequest{}, err
	}
	if w.Fingerprint != "" && w.Fingerprint != r.fingerprint {
		return RepositoryRequest{}, ferrors.ValidationError("fingerprint does not match request fields").
			WithContext("expected", r.fingerprint).
			WithContext("got", w.Fingerprint).
			Build()
	}
	return r, nil
}

// MarshalJSON encodes the request with its fingerprint for the job system.
func (r RepositoryRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRequest{
		Repo:         r.repo,
		CommitHash:   r.commitHash,
		CheckoutMask: r.checkoutMask,
		Submodules:   r.submodules,
		Fingerprint:  r.fingerprint,
	})
}

func (r RepositoryRequest) Repo() string       { return r.repo }
func (r RepositoryRequest) CommitHash() string { return r.commitHash }
func (r RepositoryRequest) Submodules() bool   { return r.submodules }
func (r RepositoryRequest) Fingerprint() string {
	return r.fingerprint
}

// CheckoutMask returns a copy of the normalized mask.
func (r RepositoryRequest) CheckoutMask() []string {
	return slices.Clone(r.checkoutMask)
}

// FullTree reports whether the mask selects the whole repository.
func (r RepositoryRequest) FullTree() bool {
	return len(r.checkoutMask) == 1 && r.checkoutMask[0] == RootMask
}

// String renders the request for logs.
func (r RepositoryRequest) String() string {
	return fmt.Sprintf("%s|%s|%s|submodules=%t", r.repo, r.commitHash, strings.Join(r.checkoutMask, ","), r.submodules)
}

// Fingerprint derives the cache key for the given fields. It normalizes its
// input exactly like New, so raw and normalized fields give the same result.
func Fingerprint(repo, commitHash string, checkoutMask []string, submodules bool) string {
	return digest(NormalizeRepo(repo), normalizeCommit(commitHash), normalizeMask(checkoutMask), submodules)
}

// NormalizeRepo is the identity comparison form of a repository URL.
func NormalizeRepo(repo string) string {
	return norm.NFC.String(strings.TrimSpace(repo))
}

func digest(repo, commit string, mask []string, submodules bool) string {
	h := sha256.New()
	writeField(h, fingerprintVersion)
	writeField(h, repo)
	writeField(h, commit)
	writeField(h, strconv.Itoa(len(mask)))
	for _, p := range mask {
		writeField(h, p)
	}
	if submodules {
		writeField(h, "1")
	} else {
		writeField(h, "0")
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeField appends s as a netstring so field boundaries are unambiguous.
func writeField(h hash.Hash, s string) {
	_, _ = fmt.Fprintf(h, "%d:%s,", len(s), s)
}

func normalizeCommit(c string) string {
	c = strings.TrimSpace(c)
	if isHex(c) {
		return strings.ToLower(c)
	}
	return c
}

func isHex(s string) bool {
	if len(s) < 4 || len(s) > 64 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

func normalizeMask(mask []string) []string {
	out := make([]string, 0, len(mask))
	for _, p := range mask {
		p = norm.NFC.String(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		p = path.Clean("/" + p)
		if p == RootMask {
			return []string{RootMask}
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return []string{RootMask}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
