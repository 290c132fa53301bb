package dashscope

import (
	"bufio"
	"bytes"
	"encoding/json"
)

const dataPrefix = "data:"

// LastEvent scans an event-stream body and returns the payload of the last
// "data:" line that holds valid JSON. Lines without the prefix, empty
// payloads and malformed JSON are skipped. The returned bytes are the
// payload as sent, with surrounding whitespace removed.
func LastEvent(raw []byte) (json.RawMessage, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), len(raw)+1)

	var last []byte

	for scanner.Scan() {
		line := scanner.Bytes()

		if !bytes.HasPrefix(line, []byte(dataPrefix)) {
			continue
		}

		payload := bytes.TrimSpace(line[len(dataPrefix):])

		if len(payload) == 0 || !json.Valid(payload) {
			continue
		}

		last = append(last[:0], payload...)
	}

	if last == nil {
		return nil, false
	}

	return json.RawMessage(last), true
}

// Truncate returns at most the first n characters of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}

	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}

	return s
}
