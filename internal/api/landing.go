package api

import "net/http"

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>docqa</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #0f172a; color: #e2e8f0; min-height: 100vh; display: flex; align-items: center; justify-content: center; }
  .card { max-width: 640px; width: 90%; background: #1e293b; border-radius: 12px; padding: 2.5rem; }
  h1 { font-size: 1.75rem; margin-bottom: 0.5rem; color: #f8fafc; }
  .subtitle { color: #94a3b8; margin-bottom: 1.75rem; }
  .section-title { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.1em; color: #64748b; margin: 1.25rem 0 0.5rem; }
  pre { background: #0f172a; border: 1px solid #334155; border-radius: 8px; padding: 1rem; overflow-x: auto; font-size: 0.85rem; line-height: 1.5; }
  .endpoint { font-family: "SF Mono", Menlo, monospace; font-size: 0.9rem; color: #a5b4fc; }
</style>
</head>
<body>
<div class="card">
  <h1>docqa</h1>
  <p class="subtitle">Upload PDF, Word, Excel, PowerPoint, image and text files, then search and ask questions about them.</p>

  <div class="section-title">Upload</div>
  <pre><code>curl -F file=@handbook.pdf -F collection=hr http://localhost:8000/api/v1/upload</code></pre>

  <div class="section-title">Ask</div>
  <pre><code>curl -d '{"question":"How many vacation days do I get?","collection":"hr"}' http://localhost:8000/api/v1/qa</code></pre>

  <div class="section-title">Endpoints</div>
  <p><span class="endpoint">/api/v1</span> &mdash; upload, search, qa, documents, collections</p>
  <p><span class="endpoint">/mcp</span> &mdash; MCP Streamable HTTP</p>
  <p><span class="endpoint">/health</span> &mdash; Health check</p>
</div>
</body>
</html>`

func (s *Server) landing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(landingHTML))
}
