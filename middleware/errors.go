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

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tomoncle/crud/exception"
	"github.com/tomoncle/crud/utils"
)

var log = utils.NewLogger("HTTP")

// ErrorHandler renders the last error attached with c.Error once the
// handler chain returns. Nothing is written when a response already went out.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		render(c, c.Errors.Last().Err)
	}
}

// Abort stops the chain and renders err immediately.
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	render(c, err)
}

func render(c *gin.Context, err error) {
	e := exception.From(err)
	if e.StatusCode >= http.StatusInternalServerError {
		utils.Entry(c.Request.Context(), log, "error-handler").
			WithError(err).
			Error("Unhandled error")
	}
	c.AbortWithStatusJSON(e.StatusCode, e.Response())
}
