// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Taskweave Contributors

package web

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Page rendering is deliberately minimal: the pages exist so the
// authentication flows have somewhere to land, not as a UI.

const homePage = `<!DOCTYPE html>
<html>
<head><title>Taskweave</title></head>
<body>
<h1>Taskweave</h1>
<p><a href="/users/login">Log in</a> or <a href="/users/register">register</a>.</p>
</body>
</html>
`

const loginPage = `<!DOCTYPE html>
<html>
<head><title>Log in - Taskweave</title></head>
<body>
<h1>Log in</h1>
{{if .Error}}<p class="flash-error">{{.Error}}</p>{{end}}
<form method="post" action="/users/login">
<label>Email <input type="email" name="email" required></label>
<label>Password <input type="password" name="password" required></label>
<button type="submit">Log in</button>
</form>
</body>
</html>
`

const registerPage = `<!DOCTYPE html>
<html>
<head><title>Register - Taskweave</title></head>
<body>
<h1>Register</h1>
<form method="post" action="/users/register">
<label>Username <input type="text" name="username" required></label>
<label>Email <input type="email" name="email" required></label>
<label>Password <input type="password" name="password" required></label>
<button type="submit">Register</button>
</form>
</body>
</html>
`

const todoPage = `<!DOCTYPE html>
<html>
<head><title>Your tasks - Taskweave</title></head>
<body>
<h1>Welcome, {{.Username}}</h1>
<form method="post" action="/users/logout"><button type="submit">Log out</button></form>
</body>
</html>
`

// pageTemplates parses the page set once for gin's HTML renderer.
func pageTemplates() *template.Template {
	t := template.New("")
	template.Must(t.New("home").Parse(homePage))
	template.Must(t.New("login").Parse(loginPage))
	template.Must(t.New("register").Parse(registerPage))
	template.Must(t.New("todo").Parse(todoPage))
	return t
}

func (s *Server) handleHome(c *gin.Context) {
	c.HTML(http.StatusOK, "home", nil)
}

func (s *Server) handleTodoHome(c *gin.Context) {
	// requireAuth guarantees a payload here.
	user, _ := CurrentUser(c)
	c.HTML(http.StatusOK, "todo", gin.H{"Username": user.Username})
}
