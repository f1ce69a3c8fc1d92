package api

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"
)

// serveAdmin serves the embedded single-page admin panel. Asset requests
// under /admin/ fall back to the index; the panel carries everything
// inline.
func serveAdmin(c *gin.Context, tokens []string) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(adminIndexHTML))
}

// 1x1 transparent PNG
const faviconBase64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

var faviconPNG, _ = base64.StdEncoding.DecodeString(faviconBase64)

func serveFavicon(c *gin.Context) {
	c.Data(http.StatusOK, "image/png", faviconPNG)
}

const adminIndexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Admin Panel</title>
<style>
    * { padding: 0; margin: 0; }
    body { padding: 32px; font-size: 16px; font-family: sans-serif; }
    section { margin-bottom: 24px; }
    table { border-collapse: collapse; }
    caption { font-size: 120%; text-align: left; padding: 4px 8px; font-weight: bold; background-color: #ddd; }
    table, tr, th, td { border: 1px solid #ddd; }
    th, td { padding: 4px 8px; }
    ul { list-style: none; }
    .collection-list a {
        display: block; width: 160px; padding: 4px 8px;
        text-decoration: none; color: black; background-color: #ccc;
    }
    .collection-list a:hover { background-color: #ddd; }
    .layout { display: flex; gap: 24px; align-items: flex-start; }
</style>
</head>
<body>
<section>
    <p>Request throttling: <span id="throttle-state">...</span>
        <button onclick="setThrottle(true)">Enable</button>
        <button onclick="setThrottle(false)">Disable</button>
    </p>
</section>
<section class="layout">
    <ul class="collection-list" id="collections"></ul>
    <div id="viewer"><p>Select a collection to view records</p></div>
</section>
<script>
async function json(url, options) {
    return await (await fetch('/' + url, options)).json();
}

async function refreshThrottle() {
    const state = await json('util/throttle');
    document.getElementById('throttle-state').textContent = state;
}

async function setThrottle(throttle) {
    await json('util', {
        method: 'POST',
        headers: { 'Content-Type': 'application/json' },
        body: JSON.stringify({ throttle })
    });
    refreshThrottle();
}

async function loadCollections() {
    const names = await json('data');
    const list = document.getElementById('collections');
    list.innerHTML = '';
    for (const name of names) {
        const li = document.createElement('li');
        const a = document.createElement('a');
        a.href = 'javascript:void(0)';
        a.textContent = name;
        a.onclick = () => showRecords(name);
        li.appendChild(a);
        list.appendChild(li);
    }
}

async function showRecords(name) {
    const records = await json('data/' + name);
    const fields = new Set(['_id']);
    records.forEach(r => Object.keys(r).forEach(k => fields.add(k)));
    const layout = [...fields];

    const table = document.createElement('table');
    const caption = table.createCaption();
    caption.textContent = name;
    const head = table.createTHead().insertRow();
    layout.forEach(f => {
        const th = document.createElement('th');
        th.textContent = f;
        head.appendChild(th);
    });
    const body = table.createTBody();
    records.forEach(r => {
        const row = body.insertRow();
        layout.forEach(f => {
            row.insertCell().textContent = r[f] === undefined ? '(missing)' : JSON.stringify(r[f]);
        });
    });

    const viewer = document.getElementById('viewer');
    viewer.innerHTML = '';
    viewer.appendChild(table);
}

refreshThrottle();
loadCollections();
</script>
</body>
</html>
`
