package webview

import (
	"html/template"
	"log/slog"
	"net/http"
)

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>edgeview</title>
<style>
body { margin: 0; background: #000; color: #9c9; font: 12px monospace; }
img { display: block; max-width: 100vw; max-height: 90vh; margin: auto; }
pre { margin: 4px 8px; }
</style>
</head>
<body>
<img id="edges" alt="edges">
<pre id="stats">connecting</pre>
<script>
(function () {
  var img = document.getElementById("edges");
  var stats = document.getElementById("stats");
  var url = null;
  function connect() {
    var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
    ws.binaryType = "blob";
    ws.onmessage = function (ev) {
      if (typeof ev.data === "string") {
        stats.textContent = JSON.stringify(JSON.parse(ev.data), null, 2);
        return;
      }
      var next = URL.createObjectURL(new Blob([ev.data], {type: "{{.ContentType}}"}));
      img.onload = function () { if (url) URL.revokeObjectURL(url); url = next; };
      img.src = next;
    };
    ws.onclose = function () {
      stats.textContent = "disconnected, retrying";
      setTimeout(connect, 1000);
    };
  }
  connect();
})();
</script>
</body>
</html>
`))

func (s *Server) servePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct{ ContentType string }{s.enc.ContentType}
	if err := page.Execute(w, data); err != nil {
		slog.Debug("webview: page write failed", "error", err)
	}
}
