/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package utils

import (
	"os"
	"strconv"
	"strings"
	"unicode"
)

// Kebab converts a Go type name into the directory name used for its query
// files: "UserProfile" -> "user-profile", "HTTPServer" -> "http-server".
func Kebab(name string) string {
	runes := []rune(name)
	var b strings.Builder
	writeWord := func(word []rune, offset int) {
		if offset > 0 {
			if prev := runes[offset-1]; prev != '-' && prev != '_' {
				b.WriteByte('-')
			}
		}
		b.WriteString(strings.ToLower(string(word)))
	}

	for i := 0; i < len(runes); {
		if !unicode.IsUpper(runes[i]) {
			b.WriteRune(runes[i])
			i++
			continue
		}
		j := i
		for j < len(runes) && unicode.IsUpper(runes[j]) {
			j++
		}
		followedByLower := j < len(runes) && unicode.IsLower(runes[j])
		if followedByLower && j-i > 1 {
			// "HTTPServer": the last capital starts the next word.
			writeWord(runes[i:j-1], i)
			writeWord(runes[j-1:j], j-1)
		} else {
			writeWord(runes[i:j], i)
		}
		i = j
	}
	return b.String()
}

// Camel converts a query file name into its query name:
// "find-by-email" -> "findByEmail", "count_active" -> "countActive".
func Camel(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if (r == '-' || r == '_') && i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' {
			b.WriteRune(unicode.ToUpper(runes[i+1]))
			i++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Snake converts a Go identifier into its snake_case form the way bun names
// columns: "UserID" -> "user_id".
func Snake(name string) string {
	return strings.ReplaceAll(Kebab(name), "-", "_")
}

func EnvDefaultString(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, _ := strconv.ParseBool(v)
		return b
	}
	return def
}
