// Package naming переводит идентификаторы полей между camelCase (код) и snake_case (колонки).
package naming

import "strings"

// ToSnake вставляет "_" перед каждой заглавной буквой и опускает её в нижний регистр.
// "enterpriseUid" -> "enterprise_uid"; строка без заглавных возвращается как есть.
func ToSnake(s string) string {
	if !hasUpper(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			b.WriteByte('_')
			b.WriteByte(c + ('a' - 'A'))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// ToCamel делает обратное преобразование, "_x" -> "X".
// "enterprise_uid" -> "enterpriseUid"; строка без "_" возвращается как есть.
// "_" перед цифрой остаётся на месте ("address_2"), иначе ToSnake не смог бы его вернуть.
func ToCamel(s string) string {
	if strings.IndexByte(s, '_') < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' && i+1 < len(s) && 'a' <= s[i+1] && s[i+1] <= 'z' {
			i++
			b.WriteByte(s[i] - ('a' - 'A'))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// SnakeKeys возвращает копию map с ключами в snake_case.
func SnakeKeys(m map[string]any) map[string]any {
	return convertKeys(m, ToSnake)
}

// CamelKeys возвращает копию map с ключами в camelCase (строки результата -> поля записи).
func CamelKeys(m map[string]any) map[string]any {
	return convertKeys(m, ToCamel)
}

func convertKeys(m map[string]any, conv func(string) string) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[conv(k)] = v
	}
	return out
}

func hasUpper(s string) bool {
	for i := 0; i < len(s); i++ {
		if 'A' <= s[i] && s[i] <= 'Z' {
			return true
		}
	}
	return false
}
