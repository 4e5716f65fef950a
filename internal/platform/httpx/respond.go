// Package httpx provides the JSON envelope every API endpoint responds with.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// Envelope is the uniform success wrapper.
type Envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// ErrorBody is the uniform failure wrapper. Kind is machine-readable;
// Message is for humans.
type ErrorBody struct {
	Success bool      `json:"success"`
	Error   ErrorInfo `json:"error"`
}

type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// JSON writes a raw JSON response.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// OK writes {success:true, data} with status 200.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes {success:true, data} with status 201.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, Envelope{Success: true, Data: data})
}

// Fail writes {success:false, error:{kind,message}}.
func Fail(w http.ResponseWriter, status int, kind, message string) {
	JSON(w, status, ErrorBody{Success: false, Error: ErrorInfo{Kind: kind, Message: message}})
}

// DecodeJSON decodes the request body into target, rejecting unknown fields.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}
