package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/harentsoaR/jobboard-api/internal/apperror"
)

// rawFields keep their value untouched by HTML escaping.
var rawFields = map[string]bool{
	"password":        true,
	"passwordConfirm": true,
	"passwordCurrent": true,
}

// Sanitize removes operator keys ($-prefixed or dotted) from the query
// string and JSON bodies, keeps only the last value of a repeated query
// parameter, and escapes the opening angle bracket in JSON string values
// so stored text cannot open a tag. Other characters are stored as sent.
func Sanitize() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.URL.RawQuery = cleanQuery(c.Request.URL.Query())

		if c.Request.Body == nil || !isJSON(c.Request) {
			c.Next()
			return
		}

		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				apperror.Abort(c, apperror.TooLarge())
				return
			}
			apperror.Abort(c, err)
			return
		}

		cleaned := raw
		var body interface{}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&body); err == nil {
			if out, err := json.Marshal(clean("", body)); err == nil {
				cleaned = out
			}
		}
		// Malformed JSON passes through unchanged; binding reports it.
		c.Request.Body = io.NopCloser(bytes.NewReader(cleaned))
		c.Request.ContentLength = int64(len(cleaned))
		c.Next()
	}
}

func forbiddenKey(key string) bool {
	return strings.HasPrefix(key, "$") || strings.Contains(key, ".")
}

func cleanQuery(values url.Values) string {
	out := url.Values{}
	for key, vals := range values {
		if forbiddenKey(key) || len(vals) == 0 {
			continue
		}
		out.Set(key, vals[len(vals)-1])
	}
	return out.Encode()
}

func clean(key string, v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			if forbiddenKey(k) {
				continue
			}
			out[k] = clean(k, item)
		}
		return out
	case []interface{}:
		for i, item := range val {
			val[i] = clean(key, item)
		}
		return val
	case string:
		if rawFields[key] {
			return val
		}
		return strings.ReplaceAll(val, "<", "&lt;")
	default:
		return val
	}
}
