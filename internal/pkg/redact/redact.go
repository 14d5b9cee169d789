// redact маскирует чувствительные данные перед записью в логи
// (e-mail, токены, пароли), сохраняя полезный для отладки контекст.
package redact

import "strings"

// Email маскирует локальную часть адреса, оставляя домен как есть.
// Строка без ровно одного '@' редактируется целиком в "***".
// Локальная часть короче трёх рун скрывается полностью, иначе
// остаются первые две руны (срез по рунам, не по байтам, чтобы
// не ломать многобайтовые локали).
func Email(s string) string {
	if strings.Count(s, "@") != 1 {
		return "***"
	}

	i := strings.IndexByte(s, '@')
	local, domain := s[:i], s[i+1:]

	lr := []rune(local)
	if len(lr) > 2 {
		local = string(lr[:2]) + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

// Token возвращает литерал-заглушку для токена в логах.
func Token() string { return "[REDACTED_TOKEN]" }

// Password возвращает литерал-заглушку для пароля в логах.
func Password() string { return "[REDACTED_PASSWORD]" }
