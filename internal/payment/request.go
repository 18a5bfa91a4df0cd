package payment

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"zapvoice/internal/services"
	"zapvoice/internal/textutil"
	"zapvoice/internal/zaps"
)

const maxNameLength = 64

// MaxPledgeSats is the largest amount whose millisatoshi value fits in an
// int64.
const MaxPledgeSats = math.MaxInt64 / msatPerSat

// PledgeRequest is what a submitter sends from the pledge form.
type PledgeRequest struct {
	SubmitterName string `json:"name" validate:"maxrunes=64"`
	MessageText   string `json:"text" validate:"maxtext"`
	VoiceModel    string `json:"model" validate:"omitempty,voicemodel"`
	AmountSats    int64  `json:"amount" validate:"minsats,maxsats"`
	RecipientID   string `json:"npub" validate:"required,pubkey"`
	GoalEventID   string `json:"eventId" validate:"omitempty,eventid"`
}

// Normalized returns a copy with whitespace trimmed and the message cleaned
// of control characters.
func (r PledgeRequest) Normalized() PledgeRequest {
	r.SubmitterName = textutil.NormalizeMessage(r.SubmitterName)
	r.MessageText = textutil.NormalizeMessage(r.MessageText)
	r.VoiceModel = strings.TrimSpace(r.VoiceModel)
	r.RecipientID = strings.TrimSpace(r.RecipientID)
	r.GoalEventID = strings.TrimSpace(r.GoalEventID)
	return r
}

// Limits are the runtime bounds a pledge must satisfy.
type Limits struct {
	MinSatoshi    int64
	MaxTextLength int
	Models        []string
}

// Validator checks pledges against Limits.
type Validator struct {
	limits   Limits
	validate *validator.Validate
}

// NewValidator registers the pledge rules for limits.
func NewValidator(limits Limits) *Validator {
	v := &Validator{limits: limits, validate: validator.New()}
	v.validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	must(v.validate.RegisterValidation("minsats", func(fl validator.FieldLevel) bool {
		return fl.Field().Int() >= v.limits.MinSatoshi
	}))
	must(v.validate.RegisterValidation("maxsats", func(fl validator.FieldLevel) bool {
		return fl.Field().Int() <= MaxPledgeSats
	}))
	must(v.validate.RegisterValidation("maxtext", func(fl validator.FieldLevel) bool {
		return textutil.Length(fl.Field().String()) <= v.limits.MaxTextLength
	}))
	must(v.validate.RegisterValidation("maxrunes", func(fl validator.FieldLevel) bool {
		return textutil.Length(fl.Field().String()) <= maxNameLength
	}))
	must(v.validate.RegisterValidation("voicemodel", func(fl validator.FieldLevel) bool {
		return len(v.limits.Models) == 0 || slices.Contains(v.limits.Models, fl.Field().String())
	}))
	must(v.validate.RegisterValidation("pubkey", func(fl validator.FieldLevel) bool {
		_, err := zaps.DecodePubkey(fl.Field().String())
		return err == nil
	}))
	must(v.validate.RegisterValidation("eventid", func(fl validator.FieldLevel) bool {
		_, err := zaps.DecodeEventID(fl.Field().String())
		return err == nil
	}))
	return v
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Validate returns a services.ErrValidation error describing every failed
// rule, or nil when req is acceptable.
func (v *Validator) Validate(req PledgeRequest) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return services.Wrap(services.ErrValidation, "payment", "validate", "", err)
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, v.describe(fe))
	}
	return services.Wrap(services.ErrValidation, "payment", "validate", strings.Join(messages, "; "), nil)
}

func (v *Validator) describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "minsats":
		return fmt.Sprintf("amount must be at least %d sats", v.limits.MinSatoshi)
	case "maxsats":
		return fmt.Sprintf("amount must be at most %d sats", int64(MaxPledgeSats))
	case "maxtext":
		return fmt.Sprintf("text must be at most %d characters", v.limits.MaxTextLength)
	case "maxrunes":
		return fmt.Sprintf("name must be at most %d characters", maxNameLength)
	case "voicemodel":
		return fmt.Sprintf("model %q is not available", fe.Value())
	case "pubkey":
		return "npub is not a valid public key"
	case "eventid":
		return "eventId is not a valid event reference"
	case "required":
		return fe.Field() + " is required"
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
