package viewer

import (
	"html/template"
	"io"
)

var leaderboardFuncs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
	"short": func(id string) string {
		if len(id) > 8 {
			return id[:8]
		}
		return id
	},
}

var leaderboardTmpl = template.Must(template.New("leaderboard").Funcs(leaderboardFuncs).Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>snek leaderboard</title>
<style>
body { font-family: monospace; background: #111; color: #ddd; }
table { border-collapse: collapse; }
td, th { padding: 2px 10px; text-align: right; }
tr.peer { color: #8ab; }
</style>
</head>
<body>
<h1>Leaderboard</h1>
<p class="total">{{.Total}} sessions recorded</p>
{{if .Sessions}}
<table id="leaderboard">
<thead><tr><th>#</th><th>session</th><th>score</th><th>level</th><th>ticks</th><th>difficulty</th><th>board</th><th>source</th><th>ended by</th></tr></thead>
<tbody>
{{range $i, $s := .Sessions}}<tr class="session{{if $s.Peer}} peer{{end}}" data-peer="{{$s.Peer}}" data-session="{{$s.SessionID}}" data-score="{{$s.Score}}" data-level="{{$s.Level}}" data-ticks="{{$s.Ticks}}" data-difficulty="{{$s.Difficulty}}" data-source="{{$s.Source}}" data-cause="{{$s.Cause}}" data-width="{{$s.Width}}" data-height="{{$s.Height}}" data-wrap="{{$s.Wrap}}">
<td>{{inc $i}}</td><td><a href="{{$s.Peer}}/api/sessions/{{$s.SessionID}}">{{short $s.SessionID}}</a></td><td>{{$s.Score}}</td><td>{{$s.Level}}</td><td>{{$s.Ticks}}</td><td>{{$s.Difficulty}}</td><td>{{$s.Width}}x{{$s.Height}}{{if $s.Wrap}} wrap{{end}}</td><td>{{$s.Source}}</td><td>{{if $s.Cause}}{{$s.Cause}}{{else}}-{{end}}</td>
</tr>
{{end}}</tbody>
</table>
{{else}}
<p class="empty">No sessions yet.</p>
{{end}}
</body>
</html>
`))

type leaderboardPage struct {
	Total    int
	Sessions []SessionSummary
}

// renderLeaderboard writes the HTML leaderboard with rows in the order given.
func renderLeaderboard(w io.Writer, total int, rows []SessionSummary) error {
	return leaderboardTmpl.Execute(w, leaderboardPage{Total: total, Sessions: rows})
}
