package api

import (
	"encoding/json"
	"io"
	"net/http"
)

// writeJSON marshals v to JSON into a buffer first, so marshalling errors
// can still be reported as a proper 500 before any bytes reach the client.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

// mergePatch shallow-merges the request body's top-level JSON keys onto
// existing and decodes the result into dst (§6.2 documents PUT bodies as
// "partial"; original_source/backend/app/storage/file_storage.py resolves
// the same ambiguity with a dict merge, {**existing, **data}). A field the
// body omits keeps its stored value instead of being zeroed out.
func mergePatch(r *http.Request, existing any, dst any) error {
	existingBytes, err := json.Marshal(existing)
	if err != nil {
		return err
	}
	merged := map[string]any{}
	if err := json.Unmarshal(existingBytes, &merged); err != nil {
		return err
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(body) > 0 {
		patch := map[string]any{}
		if err := json.Unmarshal(body, &patch); err != nil {
			return err
		}
		for k, v := range patch {
			merged[k] = v
		}
	}

	mergedBytes, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	return json.Unmarshal(mergedBytes, dst)
}
