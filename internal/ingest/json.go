package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
)

func decodeJSONArray(content []byte) ([]RawRecord, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()
	var out []RawRecord
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode JSON array: %w", err)
	}
	return out, nil
}

func decodeJSONLines(content []byte) ([]RawRecord, error) {
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var out []RawRecord
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		var rec RawRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode JSON line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read JSON lines: %w", err)
	}
	return out, nil
}
