// Package credentials resolves the portal login from the environment, a
// .env file, or a pair embedded at build time.
package credentials

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvUser     = "RNDC_USUARIO"
	EnvPassword = "RNDC_CONTRASENA"
)

// ErrNoCredentials means no source produced both a user and a password.
var ErrNoCredentials = errors.New("no se encontraron credenciales RNDC: defina " +
	EnvUser + " y " + EnvPassword + " en el entorno o en un archivo .env")

// Embedded values are set by release builds:
//
//	-ldflags "-X autorndc/internal/credentials.embeddedUser=<b64> -X autorndc/internal/credentials.embeddedPassword=<b64>"
var (
	embeddedUser     string
	embeddedPassword string
)

// Source names where the credentials came from.
type Source string

const (
	SourceEnv      Source = "env"
	SourceDotenv   Source = "dotenv"
	SourceEmbedded Source = "embedded"
)

// Credentials is a portal login.
type Credentials struct {
	User     string
	Password string
	Source   Source
}

// String never prints the password.
func (c Credentials) String() string {
	return fmt.Sprintf("%s (%s)", c.User, c.Source)
}

// Resolver looks credentials up in order. Zero value fields use the process
// environment and ".env".
type Resolver struct {
	Getenv     func(string) string
	DotenvPath string
	// EmbeddedUser and EmbeddedPassword default to the build-time values.
	EmbeddedUser     string
	EmbeddedPassword string
}

// Resolve uses the default resolver.
func Resolve() (Credentials, error) {
	return Resolver{}.Resolve()
}

// Resolve returns the first complete pair from the environment, the .env
// file, then the embedded values.
func (r Resolver) Resolve() (Credentials, error) {
	getenv := r.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if c, ok := pair(getenv(EnvUser), getenv(EnvPassword), SourceEnv); ok {
		return c, nil
	}

	path := r.DotenvPath
	if path == "" {
		path = ".env"
	}
	if vals, err := godotenv.Read(path); err == nil {
		if c, ok := pair(vals[EnvUser], vals[EnvPassword], SourceDotenv); ok {
			return c, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Credentials{}, fmt.Errorf("read %s: %w", path, err)
	}

	eu, ep := r.EmbeddedUser, r.EmbeddedPassword
	if eu == "" && ep == "" {
		eu, ep = embeddedUser, embeddedPassword
	}
	if eu != "" && ep != "" {
		user, err := decode(eu)
		if err != nil {
			return Credentials{}, fmt.Errorf("embedded user: %w", err)
		}
		pw, err := decode(ep)
		if err != nil {
			return Credentials{}, fmt.Errorf("embedded password: %w", err)
		}
		if c, ok := pair(user, pw, SourceEmbedded); ok {
			return c, nil
		}
	}
	return Credentials{}, ErrNoCredentials
}

func pair(user, pw string, src Source) (Credentials, bool) {
	user = strings.TrimSpace(user)
	if user == "" || pw == "" {
		return Credentials{}, false
	}
	return Credentials{User: user, Password: pw, Source: src}, true
}

func decode(s string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Encode produces the value expected by the embedded ldflags variables.
func Encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}
