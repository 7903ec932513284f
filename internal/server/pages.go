package server

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/tessera/internal/component"
)

var titleCaser = cases.Title(language.English)

// DisplayName turns a custom element name into a heading, e.g.
// "click-counter" into "Click Counter".
func DisplayName(name string) string {
	return titleCaser.String(strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(name))
}

const shellStyle = `<style>
body{font-family:system-ui,-apple-system,sans-serif;margin:0;padding:20px;background:#f5f5f5;color:#222}
main{max-width:1100px;margin:0 auto;background:#fff;padding:20px;border-radius:8px;box-shadow:0 2px 10px rgba(0,0,0,.1)}
h1{border-bottom:2px solid #007acc;padding-bottom:10px}
.component-list{display:grid;grid-template-columns:repeat(auto-fill,minmax(280px,1fr));gap:16px;padding:0;list-style:none}
.component-card{border:1px solid #ddd;border-radius:6px;padding:14px;background:#fafafa}
.component-name{font-weight:bold;color:#007acc}
.component-meta{font-size:12px;color:#666;margin-top:6px}
.panel{border:1px dashed #bbb;border-radius:6px;padding:14px;margin:12px 0}
#tessera-status{position:fixed;top:12px;right:12px;padding:6px 12px;border-radius:4px;color:#fff;background:#dc3545;font-size:12px}
#tessera-status.connected{background:#28a745}
</style>`

// liveScript keeps the page in sync with the server. On the index it reloads
// on definition changes; on a preview page it forwards events from the live
// host and replaces the host's markup with every render pushed back.
const liveScript = `<script>
(function () {
  var status = document.getElementById("tessera-status");
  var host = document.getElementById("tessera-live");
  var overlay = document.getElementById("tessera-overlay");
  var url = new URL("/ws", location.href);
  url.protocol = location.protocol === "https:" ? "wss:" : "ws:";
  if (host) {
    url.searchParams.set("component", host.dataset.component);
    url.searchParams.set("attrs", host.dataset.attrs || "{}");
  }
  var ws = new WebSocket(url);
  ws.onopen = function () { status.textContent = "live"; status.className = "connected"; };
  ws.onclose = function () { status.textContent = "disconnected"; status.className = ""; };
  ws.onmessage = function (e) {
    var msg = JSON.parse(e.data);
    switch (msg.type) {
    case "render": if (host) host.innerHTML = msg.content; break;
    case "errors": if (overlay) overlay.innerHTML = msg.content; break;
    case "error": if (overlay) overlay.textContent = msg.content; break;
    case "reload": case "removed": if (!host) location.reload(); break;
    }
  };
  if (!host) return;
  function pathOf(el) {
    var path = [];
    while (el && el !== host) {
      var i = 0;
      for (var s = el.previousElementSibling; s; s = s.previousElementSibling) i++;
      path.unshift(i);
      el = el.parentElement;
    }
    return el === host ? path : null;
  }
  ["click", "input", "change", "submit", "keydown", "keyup"].forEach(function (type) {
    host.addEventListener(type, function (e) {
      var path = pathOf(e.target);
      if (!path || ws.readyState !== WebSocket.OPEN) return;
      if (type === "submit") e.preventDefault();
      var msg = {type: "event", event: type, path: path};
      if ("value" in e.target) msg.value = String(e.target.value);
      if (e.target.type === "checkbox" || e.target.type === "radio") msg.checked = e.target.checked;
      ws.send(JSON.stringify(msg));
    });
  });
})();
</script>`

// layout wraps body in the page shell.
func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		head := `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>` +
			templ.EscapeString(title) + ` - Tessera</title>` + shellStyle +
			`</head><body><div id="tessera-status">connecting</div><main>`
		if _, err := io.WriteString(w, head); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</main>`+liveScript+`</body></html>`)
		return err
	})
}

// indexPage lists the registered definitions.
func indexPage(defs []*component.Definition) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<h1>Components</h1>`)
		if len(defs) == 0 {
			b.WriteString(`<p>No components registered.</p>`)
		}
		b.WriteString(`<ul class="component-list">`)
		for _, def := range defs {
			href := templ.URL("/component/" + def.Name)
			fmt.Fprintf(&b, `<li class="component-card"><a class="component-name" href="%s">%s</a>`,
				templ.EscapeString(string(href)), templ.EscapeString(DisplayName(def.Name)))
			fmt.Fprintf(&b, `<div class="component-meta">&lt;%s&gt;`, templ.EscapeString(def.Name))
			if def.Role != component.RolePlain {
				fmt.Fprintf(&b, ` as %s`, templ.EscapeString(string(def.Role)))
			}
			b.WriteString(`</div>`)
			if len(def.Observed) > 0 || def.ObservesContent {
				observed := append([]string(nil), def.Observed...)
				if def.ObservesContent {
					observed = append(observed, component.ContentObserver)
				}
				fmt.Fprintf(&b, `<div class="component-meta">observes %s</div>`,
					templ.EscapeString(strings.Join(observed, ", ")))
			}
			if def.Source != "" {
				fmt.Fprintf(&b, `<div class="component-meta">%s</div>`, templ.EscapeString(def.Source))
			}
			b.WriteString(`</li>`)
		}
		b.WriteString(`</ul>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
	return layout("Components", body)
}

// previewPage shows the static render of a component next to a live host
// driven over the websocket.
func previewPage(def *component.Definition, attrs map[string]string, static, overlay string) (templ.Component, error) {
	attrsJSON, err := templ.JSONString(attrs)
	if err != nil {
		return nil, err
	}
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		fmt.Fprintf(&b, `<p><a href="/">All components</a></p><h1>%s</h1>`, templ.EscapeString(DisplayName(def.Name)))
		b.WriteString(`<h2>Rendered</h2><div class="panel">`)
		b.WriteString(static)
		b.WriteString(`</div><h2>Live</h2><div class="panel">`)
		fmt.Fprintf(&b, `<%s id="tessera-live" data-component="%s" data-attrs="%s"></%s>`,
			def.Name, templ.EscapeString(def.Name), templ.EscapeString(attrsJSON), def.Name)
		b.WriteString(`</div><div id="tessera-overlay">`)
		b.WriteString(overlay)
		b.WriteString(`</div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
	return layout(DisplayName(def.Name), body), nil
}

// errorPage reports a failure inside the shell.
func errorPage(title string, err error) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, werr := fmt.Fprintf(w, `<p><a href="/">All components</a></p><h1>%s</h1><pre>%s</pre>`,
			templ.EscapeString(title), templ.EscapeString(err.Error()))
		return werr
	})
	return layout(title, body)
}
