package httpapi

import (
	"encoding/json"
	"net/http"
)

const (
	msgServerError        = "Error en el servidor"
	msgDuplicateEmail     = "Email ya registrado"
	msgUserCreated        = "Usuario creado"
	msgInvalidCredentials = "Credenciales inválidas"
	msgMissingCredentials = "Email y contraseña son obligatorios"
	msgInvalidAPIKey      = "Invalid API Key"
	msgStorageError       = "DB Error"
	msgMissingToken       = "Token no enviado"
	msgInvalidToken       = "Token inválido o expirado"
	msgInvalidDates       = "Fechas inválidas"
	msgBodyTooLarge       = "Cuerpo de la petición demasiado grande"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
