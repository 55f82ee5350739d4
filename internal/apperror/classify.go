package apperror

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/harentsoaR/jobboard-api/internal/utils"
)

// dupKeyPattern pulls the offending key and value out of a server message
// such as `E11000 duplicate key error collection: db.categories index:
// name_1 dup key: { name: "Design" }`.
var dupKeyPattern = regexp.MustCompile(`dup key: \{ ?"?([^":\s]+)"?: (.+?) ?\}`)

var jwtInvalid = []error{
	jwt.ErrTokenMalformed,
	jwt.ErrTokenSignatureInvalid,
	jwt.ErrTokenUnverifiable,
	jwt.ErrTokenNotValidYet,
	jwt.ErrTokenInvalidClaims,
}

// Classify maps any error to an operational *Error. The boolean is false
// for programming or unknown failures, whose details must not reach
// production clients.
func Classify(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return NoDocument().Wrap(err), true
	}
	if mongo.IsDuplicateKeyError(err) {
		return duplicateFrom(err), true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return FromValidator(verrs).Wrap(err), true
	}

	if errors.Is(err, jwt.ErrTokenExpired) {
		return TokenExpired().Wrap(err), true
	}
	for _, target := range jwtInvalid {
		if errors.Is(err, target) {
			return TokenInvalid().Wrap(err), true
		}
	}
	if errors.Is(err, utils.ErrMissingSecret) {
		return AuthConfig(err), true
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return TooLarge().Wrap(err), true
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return Malformed(fmt.Sprintf("Invalid request: malformed JSON at offset %d", syntaxErr.Offset)).Wrap(err), true
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return FieldInvalid(typeErr.Field, fmt.Sprintf("%s must be a %s.", label(typeErr.Field), typeErr.Type.String())).Wrap(err), true
	}
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		return Malformed(fmt.Sprintf("Invalid request: %q is not a valid value", numErr.Num)).Wrap(err), true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return Malformed("Invalid request: Missing required properties").Wrap(err), true
	}

	return nil, false
}

func duplicateFrom(err error) *Error {
	m := dupKeyPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return New(KindDuplicateKey, http.StatusBadRequest, "Duplicate Entry Error").Wrap(err)
	}
	value := strings.TrimSpace(m[2])
	if unquoted, uerr := strconv.Unquote(value); uerr == nil {
		value = unquoted
	}
	return Duplicate(m[1], value).Wrap(err)
}

// FromValidator converts binding failures into per-field messages keyed by
// the JSON field name.
func FromValidator(errs validator.ValidationErrors) *Error {
	fields := make(map[string][]string, len(errs))
	for _, fe := range errs {
		name := fe.Field()
		fields[name] = append(fields[name], messageFor(fe))
	}
	return Validation(fields)
}

func messageFor(fe validator.FieldError) string {
	l := label(fe.Field())
	switch fe.Tag() {
	case "required":
		return l + " is required."
	case "email":
		return l + " is not valid."
	case "min":
		return fmt.Sprintf("%s must be at least %s characters.", l, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters.", l, fe.Param())
	case "eqfield":
		return fmt.Sprintf("%s and %s do not match.", label(lowerFirst(fe.Param())), l)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s.", l, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "objectid":
		return fmt.Sprintf("%s must be a valid ID.", l)
	case "len":
		return fmt.Sprintf("%s must have exactly %s items.", l, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid.", l)
	}
}

// label turns a JSON field name into a human label: "passwordConfirm" ->
// "Confirm Password", "imageCover" -> "Image Cover".
func label(field string) string {
	if field == "passwordConfirm" {
		return "Confirm Password"
	}
	var b strings.Builder
	for i, r := range field {
		switch {
		case i == 0:
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsUpper(r):
			b.WriteRune(' ')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
