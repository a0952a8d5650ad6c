package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/velmie/jobrelay/job"
)

// Transport sends job requests. *http.Client satisfies it.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

func newRequest(ctx context.Context, def job.Definition, payload job.Payload) (*http.Request, error) {
	body, err := buildBody(def.BodyKeys, payload)
	if err != nil {
		return nil, err
	}

	target := def.BaseURL()
	if query := buildQuery(def.QueryKeys, payload); query != "" {
		target += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, def.RequestMethod(), target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return req, nil
}

func send(transport Transport, req *http.Request, successStatus int) error {
	resp, err := transport.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != successStatus {
		return &StatusError{Code: resp.StatusCode}
	}

	return nil
}

// buildQuery encodes the non-null payload values named by keys, in key order.
// Arrays and objects use bracket notation: tags[0]=a&filter[status]=open.
func buildQuery(keys []string, payload job.Payload) string {
	var parts []string
	for _, key := range keys {
		if !job.HasNonNullValue(payload, key) {
			continue
		}
		parts = appendQuery(parts, key, payload[key])
	}

	return strings.Join(parts, "&")
}

func appendQuery(parts []string, key string, value any) []string {
	switch v := value.(type) {
	case nil:
		return parts
	case []any:
		for i, item := range v {
			parts = appendQuery(parts, key+"["+strconv.Itoa(i)+"]", item)
		}
		return parts
	case map[string]any:
		return appendQueryMap(parts, key, v)
	case job.Payload:
		return appendQueryMap(parts, key, v)
	default:
		return append(parts, url.QueryEscape(key)+"="+url.QueryEscape(scalarString(v)))
	}
}

func appendQueryMap(parts []string, key string, m map[string]any) []string {
	subKeys := make([]string, 0, len(m))
	for k := range m {
		subKeys = append(subKeys, k)
	}
	sort.Strings(subKeys)
	for _, k := range subKeys {
		parts = appendQuery(parts, key+"["+k+"]", m[k])
	}

	return parts
}

func scalarString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "1"
		}
		return "0"
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}

// buildBody encodes the non-null payload values named by keys as a JSON object
// whose members follow key order. No matching keys yields {}.
func buildBody(keys []string, payload job.Payload) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	n := 0
	for _, key := range keys {
		if !job.HasNonNullValue(payload, key) {
			continue
		}
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(payload[key])
		if err != nil {
			return nil, fmt.Errorf("encode body key %q: %w", key, err)
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
		n++
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}
