package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"housingledger/internal/core"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads one JSON object into dst and runs struct validation.
// Unknown fields and trailing data are rejected.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return badRequest("read body: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			if field := failingField(body, dst); field != "" {
				return core.NewValidationError(field, verr.Reason)
			}
			return verr
		}
		if errors.Is(err, io.EOF) {
			return badRequest("request body is empty")
		}
		return badRequest("malformed JSON: %v", err)
	}
	if dec.More() {
		return badRequest("request body must hold a single JSON object")
	}
	return s.check(dst)
}

// failingField returns the top-level key of body whose value does not decode
// into its field of dst. Value decoders such as core.Money do not know the
// key they were called for.
func failingField(body []byte, dst any) string {
	t := reflect.TypeOf(dst)
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return ""
	}
	var raw map[string]json.RawMessage
	if json.Unmarshal(body, &raw) != nil {
		return ""
	}
	t = t.Elem()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		v, ok := raw[name]
		if name == "" || name == "-" || !ok {
			continue
		}
		if json.Unmarshal(v, reflect.New(f.Type).Interface()) != nil {
			return name
		}
	}
	return ""
}

func (s *Server) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		f := fields[0]
		reason := "failed " + f.Tag()
		switch f.Tag() {
		case "required":
			reason = "required"
		case "max":
			reason = "must be at most " + f.Param() + " characters"
		case "oneof":
			reason = "must be one of " + f.Param()
		}
		return core.NewValidationError(f.Field(), reason)
	}
	return err
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("id must be a positive integer")
	}
	return id, nil
}

func pathCounty(r *http.Request) (string, error) {
	county := strings.TrimSpace(r.PathValue("county"))
	if county == "" {
		return "", core.NewValidationError("county", "required")
	}
	return county, nil
}

// parseRange reads ?month=YYYY-MM, or ?from= and ?to= as dates or RFC 3339
// timestamps. Nothing set means all time.
func parseRange(q url.Values) (core.DateRange, error) {
	if m := strings.TrimSpace(q.Get("month")); m != "" {
		if q.Get("from") != "" || q.Get("to") != "" {
			return core.DateRange{}, core.NewValidationError("month", "cannot be combined with from/to")
		}
		month, err := core.ParseMonth(m)
		if err != nil {
			return core.DateRange{}, err
		}
		return month.Range(), nil
	}

	var r core.DateRange
	var err error
	if r.From, err = parseTime("from", q.Get("from")); err != nil {
		return core.DateRange{}, err
	}
	if r.To, err = parseTime("to", q.Get("to")); err != nil {
		return core.DateRange{}, err
	}
	return r, r.Validate()
}

func parseTime(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, core.NewValidationError(field, fmt.Sprintf("%q is not a date (YYYY-MM-DD) or RFC 3339 time", s))
	}
	return t.UTC(), nil
}

func parseInt(q url.Values, name string) (int64, error) {
	s := strings.TrimSpace(q.Get(name))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, core.NewValidationError(name, "must be a non-negative integer")
	}
	return n, nil
}

func parseMonthParam(q url.Values, name string) (core.Month, error) {
	s := strings.TrimSpace(q.Get(name))
	if s == "" {
		return core.Month{}, nil
	}
	return core.ParseMonth(s)
}
