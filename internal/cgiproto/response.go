package cgiproto

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Response is a decoded CGI response, ready to be written to an
// http.ResponseWriter.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// ParseResponse splits raw CGI stdout output into an optional header
// block (lines of "Key: Value", terminated by the first blank line) and
// a body. A case-insensitive "Status" header sets the HTTP status code;
// every other header passes through unchanged. If no blank-line-
// terminated header block is found, the entire output is the body and
// status defaults to 200.
func ParseResponse(output []byte) (*Response, error) {
	headerBlock, body, hasHeaders := splitHeaderBody(output)

	resp := &Response{
		Status: http.StatusOK,
		Header: make(http.Header),
		Body:   body,
	}
	if !hasHeaders {
		return resp, nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(headerBlock))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		key, value, err := splitHeaderLine(line)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(key, "Status") {
			status, err := parseStatus(value)
			if err != nil {
				return nil, err
			}
			resp.Status = status
			continue
		}
		resp.Header.Add(key, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cgiproto: read header block: %w", err)
	}

	return resp, nil
}

// splitHeaderBody locates the first blank line ("\n\n" or "\r\n\r\n") in
// output. If found, it returns the preceding header block and the
// following body, with hasHeaders true. Otherwise the whole output is
// the body.
func splitHeaderBody(output []byte) (headerBlock, body []byte, hasHeaders bool) {
	crlf := bytes.Index(output, []byte("\r\n\r\n"))
	lf := bytes.Index(output, []byte("\n\n"))
	if crlf >= 0 && (lf < 0 || crlf < lf) {
		return output[:crlf], output[crlf+4:], true
	}
	if lf >= 0 {
		return output[:lf], output[lf+2:], true
	}
	return nil, output, false
}

func splitHeaderLine(line string) (key, value string, err error) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", fmt.Errorf("cgiproto: malformed header line %q", line)
	}
	key = line[:idx]
	value = strings.TrimLeft(line[idx+1:], " \t")
	if key == "" {
		return "", "", fmt.Errorf("cgiproto: empty header name in %q", line)
	}
	return key, value, nil
}

func parseStatus(value string) (int, error) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0, fmt.Errorf("cgiproto: empty Status value")
	}
	code, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("cgiproto: malformed Status value %q: %w", value, err)
	}
	return code, nil
}
