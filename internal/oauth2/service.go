package oauth2

import (
	"context"
	"net/url"

	"github.com/dropDatabas3/hellojohn/internal/metrics"
	"github.com/dropDatabas3/hellojohn/internal/observability/logger"
)

// Deps contiene las dependencias del orquestador.
type Deps struct {
	Resolver HandlerResolver

	// DefaultRedirect es el relay usado cuando el caller no trajo uno
	// válido. Default: DefaultSuccessRedirect.
	DefaultRedirect string
}

// Service es el orquestador del flujo: resuelve el handler, extrae y valida
// params, dispara el intercambio y arma el redirect final. Una instancia de
// proceso, inyectada en los controllers.
type Service struct {
	resolver        HandlerResolver
	defaultRedirect string
}

// NewService construye el orquestador.
func NewService(d Deps) *Service {
	redirect := d.DefaultRedirect
	if redirect == "" {
		redirect = DefaultSuccessRedirect
	}
	return &Service{resolver: d.Resolver, defaultRedirect: redirect}
}

// Authorize resuelve el handler y delega el armado de la URL de autorización
// del proveedor. Fallos de registry y handler se propagan sin mapear: acá
// todavía no hubo round-trip al proveedor y el caller espera un error crudo.
func (s *Service) Authorize(ctx context.Context, provider, relay string) (string, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth2.Authorize"), logger.Provider(provider))

	h, err := s.resolver.GetHandler(ctx, provider)
	if err != nil {
		metrics.FlowOutcomes.WithLabelValues("authorize", provider, resolveOutcome(err)).Inc()
		return "", err
	}

	location, err := h.Authorize(ctx, relay)
	if err != nil {
		log.Error("authorize failed", logger.Err(err))
		metrics.FlowOutcomes.WithLabelValues("authorize", provider, "error").Inc()
		return "", err
	}

	metrics.FlowOutcomes.WithLabelValues("authorize", provider, "ok").Inc()
	return location, nil
}

// Authenticate procesa el callback del proveedor. Orden estricto:
//
//  1. resolver handler (fallos se propagan)
//  2. extraer params esperados (primer valor de cada clave presente)
//  3. verificar params via handler (fallos se absorben en error params)
//  4. si no hubo error: exigir sesión host
//  5. si no hubo error: autenticar (intercambio + persistencia)
//
// Pase lo que pase se resuelve el relay y se retorna un redirect: pasado el
// paso 1 el usuario nunca recibe un error crudo.
func (s *Service) Authenticate(ctx context.Context, provider string, query url.Values, sessionToken string) (string, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth2.Authenticate"), logger.Provider(provider))

	h, err := s.resolver.GetHandler(ctx, provider)
	if err != nil {
		metrics.FlowOutcomes.WithLabelValues("authenticate", provider, resolveOutcome(err)).Inc()
		return "", err
	}

	params := extractParams(h.AuthenticateParamKeys(), query)

	var errParams []Param
	if err := h.VerifyAuthenticateParams(ctx, params); err != nil {
		if fe, ok := AsFlow(err); ok && fe.PermDenied {
			// denegación: el mensaje del fallo viaja al caller
			errParams = append(errParams,
				Param{QueryError, CodeAccessDenied},
				Param{QueryErrorMsg, fe.Message},
			)
		} else {
			// operación inválida: solo el código propio del fallo
			errParams = append(errParams, Param{QueryError, flowCode(err, CodeInvalidRequest)})
		}
		log.Warn("authenticate params rejected", logger.Err(err))
	}

	if len(errParams) == 0 && sessionToken == "" {
		// sin sesión host no hay forma de saber a qué cuenta colgar la
		// credencial; pasa cuando el request no trae cookie de sesión
		errParams = append(errParams,
			Param{QueryError, CodeInvalidSession},
			Param{QueryErrorMsg, MsgInvalidSession},
		)
		log.Info("authenticate without host session")
	}

	if len(errParams) == 0 {
		info := NewAuthInfo(params)
		info.Provider = provider
		info.SessionToken = sessionToken
		if err := h.Authenticate(ctx, info); err != nil {
			if fe, ok := AsFlow(err); ok && fe.PermDenied {
				// denegación sin mensaje: no se ecoa detalle interno
				errParams = append(errParams, Param{QueryError, CodeAccessDenied})
			} else {
				errParams = append(errParams,
					Param{QueryError, CodeAuthFailed},
					Param{QueryErrorMsg, flowMessage(err)},
				)
			}
			log.Error("authenticate failed", logger.Err(err))
		}
	}

	// el relay es un asunto de UI: se resuelve también en caminos de error
	relay := ValidateRelay(h.Relay(params), s.defaultRedirect)

	outcome := "ok"
	if len(errParams) > 0 {
		outcome = errParams[0].Value
		log.Info("authenticate redirecting with error", logger.ErrorCode(outcome), logger.Relay(relay))
	}
	metrics.FlowOutcomes.WithLabelValues("authenticate", provider, outcome).Inc()

	return AddQueryParams(relay, errParams), nil
}

// RefreshResult es el envelope estructurado de refresh. Nunca un redirect.
type RefreshResult struct {
	Provider  string `json:"provider"`
	Username  string `json:"username"`
	Refreshed bool   `json:"refreshed"`
}

// Refresh re-intercambia la credencial guardada de (provider, username).
// Llamada server-to-server: no hay extracción de query params y los fallos
// se propagan como errores, sin semántica de redirect.
func (s *Service) Refresh(ctx context.Context, provider, username, sessionToken string) (*RefreshResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth2.Refresh"), logger.Provider(provider), logger.Username(username))

	h, err := s.resolver.GetHandler(ctx, provider)
	if err != nil {
		metrics.FlowOutcomes.WithLabelValues("refresh", provider, resolveOutcome(err)).Inc()
		return nil, err
	}

	info := NewAuthInfo(nil)
	info.Provider = provider
	info.Username = username
	info.SessionToken = sessionToken

	ok, err := h.Refresh(ctx, info)
	if err != nil {
		log.Error("refresh failed", logger.Err(err))
		metrics.FlowOutcomes.WithLabelValues("refresh", provider, "error").Inc()
		return nil, err
	}

	metrics.FlowOutcomes.WithLabelValues("refresh", provider, "ok").Inc()
	return &RefreshResult{Provider: provider, Username: username, Refreshed: ok}, nil
}

// extractParams toma, para cada clave esperada por el handler, el primer
// valor presente en el query. Claves ausentes se omiten: acá no es error.
func extractParams(keys []string, query url.Values) map[string]string {
	params := make(map[string]string, len(keys))
	for _, key := range keys {
		if vs, ok := query[key]; ok && len(vs) > 0 {
			params[key] = vs[0]
		}
	}
	return params
}

func flowCode(err error, fallback string) string {
	if fe, ok := AsFlow(err); ok && fe.Code != "" {
		return fe.Code
	}
	return fallback
}

func flowMessage(err error) string {
	if fe, ok := AsFlow(err); ok && fe.Message != "" {
		return fe.Message
	}
	return err.Error()
}

func resolveOutcome(err error) string {
	switch {
	case IsInvalidClient(err):
		return "invalid_client"
	case IsConfiguration(err):
		return "configuration_error"
	default:
		return "error"
	}
}
