package testutil

import "fmt"

// TitleConfig returns a config with one root scope that renders the "title"
// request with format and everything else as plain text.
func TitleConfig(format string) string {
	return fmt.Sprintf(`
[log]
level = "error"

[[scopes]]
name = "root"

  [[scopes.middleware]]
  name = "match"
  params = { request = "title", format = %q }

  [[scopes.middleware]]
  name = "default"
  params = { format = "plain" }
`, format)
}

// NestedConfig declares an app scope with a custom format and a sidebar
// scope under it that tags notes.
const NestedConfig = `
[log]
level = "error"

[formats.loud]
suffix = "!!"
case = "upper"

[[scopes]]
name = "app"

  [[scopes.middleware]]
  name = "match"
  params = { request = "title", format = "bold" }

  [[scopes.middleware]]
  name = "lookup"

[[scopes]]
name = "sidebar"
parent = "app"
tags = ["side"]

  [[scopes.middleware]]
  name = "tag"
  params = { request = "note" }

  [[scopes.middleware]]
  name = "match"
  params = { request = "note", format = "italic" }
`

// RequestLines is a replay file exercising a hit, a memo hit and a miss.
const RequestLines = `# comment
app title one
app title two

sidebar missing three
`
