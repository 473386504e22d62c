// Package http contiene la capa de transporte del broker: middlewares,
// controllers y el router chi.
package http

import (
	"encoding/json"
	"net/http"
)

// Códigos numéricos de error de la API. Rango 21xx: flujo OAuth2.
const (
	CodeNumUnauthorized  = 2002
	CodeNumNotFound      = 2003
	CodeNumInternal      = 2004
	CodeNumUnavailable   = 2005
	CodeNumInvalidClient = 2101
	CodeNumConfiguration = 2102
	CodeNumFlowFailed    = 2103
)

type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorCode        int    `json:"error_code,omitempty"`
	RequestID        string `json:"request_id,omitempty"`
}

// WriteError escribe un error JSON con el request id ya expuesto en headers.
func WriteError(w http.ResponseWriter, status int, code, desc string, errCode int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rid := w.Header().Get("X-Request-ID")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{
		Error:            code,
		ErrorDescription: desc,
		ErrorCode:        errCode,
		RequestID:        rid,
	})
}

// WriteJSON: respuesta JSON estándar.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData envuelve el payload en {"data": ...}.
func WriteData(w http.ResponseWriter, status int, v any) {
	WriteJSON(w, status, map[string]any{"data": v})
}
