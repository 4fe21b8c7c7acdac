package httpapi

import "net/http"

// debugPage is a minimal live viewer for local debugging: loads the
// history, then follows the SSE stream.
const debugPage = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>mirror debug</title>
<style>
body { font-family: sans-serif; margin: 1em; }
.msg { margin: 0.25em 0; }
.msg img.emoji { height: 1.2em; vertical-align: text-bottom; }
.msg img.avatar { height: 24px; vertical-align: middle; margin-right: 0.3em; border-radius: 3px; }
.user { font-weight: bold; margin-right: 0.3em; }
.ts { color: #999; font-size: 0.8em; margin-left: 0.4em; }
</style>
</head>
<body>
<h1>mirror debug</h1>
<div id="messages"></div>
<script>
function add(m) {
  var div = document.createElement('div');
  div.className = 'msg';
  var avatar = m.avatar_url ? '<img class="avatar" src="' + m.avatar_url + '">' : '';
  div.innerHTML = avatar + '<span class="user">' + m.user + '</span>' + m.text +
    '<span class="ts">' + m.ts + '</span>';
  document.getElementById('messages').appendChild(div);
}
fetch('/log').then(function (r) { return r.json(); }).then(function (msgs) {
  (msgs || []).forEach(add);
  var es = new EventSource('/stream');
  es.addEventListener('msg', function (ev) { add(JSON.parse(ev.data)); });
});
</script>
</body>
</html>
`

func (s *Server) handleDebug(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(debugPage))
}
