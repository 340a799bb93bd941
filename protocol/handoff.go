package protocol

import (
	"encoding/json"
	"io"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/quotesearch/errors"
)

// Handoff is the single document a worker reads from stdin
type Handoff struct {
	ProtocolVersion string `json:"protocol_version"`
	JobID           string `json:"job_id"`
	Params          Params `json:"params"`
}

// WriteHandoff encodes h to w, stamping the current protocol version
func WriteHandoff(w io.Writer, h Handoff) error {
	if h.ProtocolVersion == "" {
		h.ProtocolVersion = Version
	}
	if err := json.NewEncoder(w).Encode(h); err != nil {
		return errors.Wrap(err, "failed to write handoff")
	}
	return nil
}

// ReadHandoff decodes one handoff from r and checks its protocol version
func ReadHandoff(r io.Reader) (*Handoff, error) {
	var h Handoff
	if err := json.NewDecoder(r).Decode(&h); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidMessage, "failed to decode handoff: "+err.Error())
	}
	if err := CheckVersion(h.ProtocolVersion); err != nil {
		return nil, err
	}
	h.Params.Normalize()
	return &h, nil
}

// CheckVersion reports whether v satisfies VersionConstraint
func CheckVersion(v string) error {
	if v == "" {
		return errors.Wrap(errors.ErrInvalidMessage, "handoff has no protocol version")
	}
	version, err := semver.NewVersion(v)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidMessage, "invalid protocol version %q", v)
	}
	constraint, err := semver.NewConstraint(VersionConstraint)
	if err != nil {
		return errors.Wrap(err, "invalid protocol constraint")
	}
	if !constraint.Check(version) {
		return errors.WithHint(
			errors.Wrapf(errors.ErrInvalidMessage, "protocol version %s does not satisfy %s", v, VersionConstraint),
			"the server and worker binaries are from incompatible releases")
	}
	return nil
}
