package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	BaseURL   string
	Session   string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string) (int, http.Header, []byte, error) {
	u := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return 0, nil, nil, err
	}
	if c.Session != "" {
		req.Header.Set("Authorization", "Bearer "+c.Session)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, resp.Header, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

func (c *client) requireSession() error {
	if c.Session == "" {
		return fmt.Errorf("falta el token de sesión del host (flag --session o env LINKJOHN_SESSION_TOKEN)")
	}
	return nil
}

func main() {
	var (
		baseURL = envOr("LINKJOHN_URL", "http://localhost:8080")
		session = envOr("LINKJOHN_SESSION_TOKEN", "")
		out     = envOr("LINKJOHN_OUT", "text")
		timeout = 30 * time.Second
	)

	cl := &client{}

	root := &cobra.Command{
		Use:   "linkjohn",
		Short: "CLI del broker de credenciales externas (flujo OAuth2 y gestión)",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cl.BaseURL = baseURL
			cl.Session = session
			cl.OutFormat = out
			cl.HTTP = &http.Client{
				Timeout: timeout,
				// el flujo contesta con redirects que queremos inspeccionar,
				// no seguir
				CheckRedirect: func(req *http.Request, via []*http.Request) error {
					return http.ErrUseLastResponse
				},
			}
		},
	}

	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "URL base del broker (env LINKJOHN_URL)")
	root.PersistentFlags().StringVar(&session, "session", session, "token de sesión del host (env LINKJOHN_SESSION_TOKEN)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")

	// health
	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Chequea /healthz del broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _, body, err := cl.do("GET", "/healthz")
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("health falló: status=%d body=%s", status, string(body))
			}
			if cl.OutFormat == "text" {
				fmt.Println("ok")
				return nil
			}
			cl.print(status, []byte(`{"ok":true}`))
			return nil
		},
	}

	// authorize
	var authProvider, authRelay string
	authorizeCmd := &cobra.Command{
		Use:   "authorize",
		Short: "Pide la URL de autorización del proveedor e imprime el Location",
		RunE: func(cmd *cobra.Command, args []string) error {
			if authProvider == "" {
				return fmt.Errorf("--provider es requerido")
			}
			path := "/oauth2/authorize/" + url.PathEscape(authProvider)
			if authRelay != "" {
				path += "?relay=" + url.QueryEscape(authRelay)
			}
			status, header, body, err := cl.do("GET", path)
			if err != nil {
				return err
			}
			if status != http.StatusSeeOther {
				return fmt.Errorf("authorize falló: status=%d body=%s", status, string(body))
			}
			loc := header.Get("Location")
			if cl.OutFormat == "json" {
				p, _ := json.Marshal(map[string]string{"location": loc})
				fmt.Println(string(p))
				return nil
			}
			fmt.Println(loc)
			return nil
		},
	}
	authorizeCmd.Flags().StringVar(&authProvider, "provider", "", "Provider id (yahoo|google|outlook|...)")
	authorizeCmd.Flags().StringVar(&authRelay, "relay", "", "Destino post-flujo (path relativo)")

	// refresh
	var refProvider, refUsername string
	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Renueva la credencial vinculada de un username",
		RunE: func(cmd *cobra.Command, args []string) error {
			if refProvider == "" || refUsername == "" {
				return fmt.Errorf("--provider y --username son requeridos")
			}
			if err := cl.requireSession(); err != nil {
				return err
			}
			path := "/oauth2/refresh/" + url.PathEscape(refProvider) + "/" + url.PathEscape(refUsername)
			status, _, body, err := cl.do("POST", path)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("refresh falló: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	refreshCmd.Flags().StringVar(&refProvider, "provider", "", "Provider id")
	refreshCmd.Flags().StringVar(&refUsername, "username", "", "Username de la cuenta externa")

	// credentials
	credentialsCmd := &cobra.Command{
		Use:   "credentials",
		Short: "Credenciales externas vinculadas a la cuenta de la sesión",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Lista las credenciales vinculadas",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.requireSession(); err != nil {
				return err
			}
			status, _, body, err := cl.do("GET", "/oauth2/credentials")
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("list falló: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}

	var unProvider, unUsername string
	unlinkCmd := &cobra.Command{
		Use:   "unlink",
		Short: "Desvincula una credencial (borra tokens guardados)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if unProvider == "" || unUsername == "" {
				return fmt.Errorf("--provider y --username son requeridos")
			}
			if err := cl.requireSession(); err != nil {
				return err
			}
			path := "/oauth2/credentials/" + url.PathEscape(unProvider) + "/" + url.PathEscape(unUsername)
			status, _, body, err := cl.do("DELETE", path)
			if err != nil {
				return err
			}
			if status != http.StatusNoContent {
				return fmt.Errorf("unlink falló: status=%d body=%s", status, string(body))
			}
			fmt.Println("unlinked")
			return nil
		},
	}
	unlinkCmd.Flags().StringVar(&unProvider, "provider", "", "Provider id")
	unlinkCmd.Flags().StringVar(&unUsername, "username", "", "Username de la cuenta externa")

	credentialsCmd.AddCommand(listCmd)
	credentialsCmd.AddCommand(unlinkCmd)

	root.AddCommand(healthCmd)
	root.AddCommand(authorizeCmd)
	root.AddCommand(refreshCmd)
	root.AddCommand(credentialsCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
