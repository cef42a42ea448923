package service

// statusPage is a minimal self-refreshing view of the queue, served at the
// root path for quick eyeballing during development.
const statusPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>SpeakUp</title>
<style>
  body { font-family: ui-monospace, monospace; margin: 2rem; background: #111; color: #ddd; }
  h1 { font-size: 1.2rem; }
  table { border-collapse: collapse; margin-top: 1rem; width: 100%; }
  th, td { text-align: left; padding: 0.3rem 0.8rem; border-bottom: 1px solid #333; }
  .status-playing { color: #6c6; }
  .status-queued { color: #cc6; }
  .status-skipped { color: #999; }
  .muted { color: #777; }
</style>
</head>
<body>
<h1>SpeakUp queue</h1>
<div id="now" class="muted">loading...</div>
<table>
  <thead><tr><th>id</th><th>project</th><th>text</th><th>tone</th><th>status</th><th>ms</th></tr></thead>
  <tbody id="history"></tbody>
</table>
<script>
async function refresh() {
  try {
    const status = await (await fetch('/api/status')).json();
    const now = document.getElementById('now');
    if (status.playing) {
      now.textContent = 'playing #' + status.playing.id + ': ' + status.playing.text +
        ' (' + status.queue_size + ' queued)';
    } else {
      now.textContent = 'idle (' + status.queue_size + ' queued)';
    }
    const history = await (await fetch('/api/history?limit=25')).json();
    const rows = (history.messages || []).map(m =>
      '<tr><td>' + m.id + '</td><td>' + (m.project || '') + '</td><td>' + m.text +
      '</td><td>' + m.tone + '</td><td class="status-' + m.status + '">' + m.status +
      '</td><td>' + (m.duration_ms == null ? '' : m.duration_ms.toFixed(0)) + '</td></tr>');
    document.getElementById('history').innerHTML = rows.join('');
  } catch (err) {
    document.getElementById('now').textContent = 'daemon unreachable';
  }
}
refresh();
setInterval(refresh, 2000);
</script>
</body>
</html>
`
