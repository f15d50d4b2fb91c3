package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ContextVersion is the current prompt context envelope version.
const ContextVersion = 1

var ErrInvalidContext = errors.New("invalid prompt context")

// Input is the typed parameter set a job type renders its sections from.
type Input interface {
	Validate() error
}

type BusinessPlanInput struct {
	CompanyName        string `json:"companyName"`
	Industry           string `json:"industry"`
	TargetMarket       string `json:"targetMarket"`
	ProductDescription string `json:"productDescription"`
	Location           string `json:"location,omitempty"`
	FundingGoal        string `json:"fundingGoal,omitempty"`
	Notes              string `json:"notes,omitempty"`
}

func (in *BusinessPlanInput) Validate() error {
	return requireFields(map[string]string{
		"companyName":        in.CompanyName,
		"industry":           in.Industry,
		"targetMarket":       in.TargetMarket,
		"productDescription": in.ProductDescription,
	})
}

type MarketingPlanInput struct {
	BrandName string   `json:"brandName"`
	Product   string   `json:"product"`
	Audience  string   `json:"audience"`
	Channels  []string `json:"channels"`
	Budget    string   `json:"budget,omitempty"`
}

func (in *MarketingPlanInput) Validate() error {
	if err := requireFields(map[string]string{
		"brandName": in.BrandName,
		"product":   in.Product,
		"audience":  in.Audience,
	}); err != nil {
		return err
	}
	if len(in.Channels) == 0 {
		return fmt.Errorf("%w: channels must not be empty", ErrInvalidContext)
	}
	for i, c := range in.Channels {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: channels[%d] is blank", ErrInvalidContext, i)
		}
	}
	return nil
}

func requireFields(fields map[string]string) error {
	var missing []string
	for name, val := range fields {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: missing %s", ErrInvalidContext, strings.Join(missing, ", "))
}

type envelope struct {
	Version int             `json:"version"`
	JobType JobType         `json:"jobType"`
	Input   json.RawMessage `json:"input"`
}

func newInput(t JobType) (Input, error) {
	switch t {
	case BusinessPlan:
		return &BusinessPlanInput{}, nil
	case MarketingPlan:
		return &MarketingPlanInput{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, t)
	}
}

// ParseInput decodes caller supplied input JSON for jobType, rejecting unknown fields.
func ParseInput(t JobType, raw []byte) (Input, error) {
	in, err := newInput(t)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: input is empty", ErrInvalidContext)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContext, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after input", ErrInvalidContext)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}

// EncodeContext wraps a validated input in the versioned envelope stored on the checkpoint.
func EncodeContext(t JobType, in Input) ([]byte, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: input is nil", ErrInvalidContext)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContext, err)
	}
	return json.Marshal(envelope{Version: ContextVersion, JobType: t, Input: body})
}

// DecodeContext reverses EncodeContext and checks the envelope belongs to jobType.
func DecodeContext(t JobType, raw []byte) (Input, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrInvalidContext, err)
	}
	if env.Version != ContextVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidContext, env.Version)
	}
	if env.JobType != t {
		return nil, fmt.Errorf("%w: envelope is for %q, job is %q", ErrInvalidContext, env.JobType, t)
	}
	return ParseInput(t, env.Input)
}

// Canonical re-encodes raw into the stable form used for cache keys.
// Stores such as Postgres JSONB may reorder keys, so the stored bytes are not used directly.
func Canonical(t JobType, raw []byte) ([]byte, Input, error) {
	in, err := DecodeContext(t, raw)
	if err != nil {
		return nil, nil, err
	}
	out, err := EncodeContext(t, in)
	if err != nil {
		return nil, nil, err
	}
	return out, in, nil
}
