// Package validation содержит функции валидации входных данных.
package validation

// principalHexLen — количество шестнадцатеричных символов адреса после префикса.
const principalHexLen = 40

// IsValidPrincipal проверяет формат адреса участника: префикс "0x"
// и ровно сорок шестнадцатеричных символов.
func IsValidPrincipal(principal string) bool {
	if len(principal) != principalHexLen+2 {
		return false
	}
	if principal[0] != '0' || principal[1] != 'x' {
		return false
	}

	for i := 2; i < len(principal); i++ {
		ch := principal[i]
		switch {
		case ch >= '0' && ch <= '9':
		case ch >= 'a' && ch <= 'f':
		case ch >= 'A' && ch <= 'F':
		default:
			return false
		}
	}

	return true
}
