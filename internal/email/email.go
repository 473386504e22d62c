// Package email notifica por correo los eventos del broker. Hoy el único
// evento es "cuenta externa vinculada": el aviso que recibe el dueño de la
// cuenta host cuando un flujo authenticate persiste una credencial nueva.
package email

import (
	"context"
	"fmt"
)

// Sender envía los avisos del broker. Los fallos se loguean aguas arriba y
// nunca cortan el flujo OAuth2.
type Sender interface {
	// SendAccountLinked avisa que username@provider quedó vinculada a la
	// cuenta host con dirección to.
	SendAccountLinked(ctx context.Context, to, provider, username string) error
}

func linkedSubject(provider string) string {
	return fmt.Sprintf("Nueva cuenta de %s vinculada", provider)
}

func linkedText(provider, username string) string {
	return fmt.Sprintf(
		"Se vinculó la cuenta externa %s (%s) a tu cuenta.\n\n"+
			"Si no fuiste vos, desvinculala desde la configuración de tu cuenta "+
			"y cambiá tu contraseña.\n", username, provider)
}

func linkedHTML(provider, username string) string {
	return fmt.Sprintf(
		`<p>Se vinculó la cuenta externa <b>%s</b> (%s) a tu cuenta.</p>
<p>Si no fuiste vos, desvinculala desde la configuración de tu cuenta y
cambiá tu contraseña.</p>`, username, provider)
}
