package main

import (
	"html/template"
	"net/http"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = indexTmpl.Execute(w, struct{ Name string }{Name: s.name})
}

var indexTmpl = template.Must(template.New("chat").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Relay Chat — {{.Name}}</title>
  <style>
    :root{
      --bg: #0d1117;
      --panel: #111827;
      --border: #1f2937;
      --fg: #e5e7eb;
      --muted: #9ca3af;
      --accent: #22c55e;
    }
    *{ box-sizing: border-box }
    body { margin:0; padding:24px; background:var(--bg); color:var(--fg); font-family: ui-sans-serif, system-ui, -apple-system, Segoe UI, Roboto, Helvetica, Arial }
    .wrap { max-width: 920px; margin: 0 auto }
    h1 { margin:0 0 12px 0; font-weight:700 }
    .term { border:1px solid var(--border); border-radius:10px; background:var(--panel); overflow:hidden }
    .termbar { display:flex; align-items:center; justify-content:space-between; padding:10px 12px; border-bottom:1px solid var(--border); font-family: ui-monospace, SFMono-Regular, Menlo, Consolas, monospace; font-size:14px }
    .termbar input{ background:transparent; border:1px solid var(--border); color:var(--fg); padding:6px 8px; border-radius:6px; font-family:inherit; font-size:13px; width:140px }
    .screen { height:420px; overflow:auto; padding:14px; font-family: ui-monospace, SFMono-Regular, Menlo, Consolas, monospace; font-size:14px; line-height:1.5 }
    .line { white-space: pre-wrap; word-break: break-word }
    .line.pending { opacity:.55 }
    .ts { color:var(--muted) }
    .usr { color:#60a5fa }
    .promptline { display:flex; align-items:center; gap:8px; padding:12px 14px; border-top:1px solid var(--border); font-family: ui-monospace, SFMono-Regular, Menlo, Consolas, monospace }
    #cmd { flex:1 1 auto; min-width:0; background:transparent; border:none; outline:none; color:var(--fg); font-family:inherit; font-size:14px }
    .pill { display:inline-block; border:1px solid var(--border); padding:2px 10px; border-radius:999px; font-size:12px; opacity:.9 }
    small{ color:var(--muted); display:block; margin-top:10px }
  </style>
</head>
<body>
  <div class="wrap">
    <h1>Relay Chat — {{.Name}}</h1>
    <div class="term">
      <div class="termbar">
        <span>room <input id="room" type="text" value="general" /></span>
        <span>nickname <input id="user" type="text" placeholder="anonymous" /></span>
        <span class="pill"><span id="online">0</span> online</span>
      </div>
      <div id="log" class="screen"></div>
      <div class="promptline">
        <span style="color:var(--accent)">&gt;</span>
        <input id="cmd" type="text" autocomplete="off" spellcheck="false" placeholder="type a message and press Enter" enterkeyhint="send" />
      </div>
    </div>
    <small>Enter to send • Nickname persists locally • Change the room field to switch rooms</small>
  </div>
  <script>
    const logEl = document.getElementById('log');
    const roomEl = document.getElementById('room');
    const userEl = document.getElementById('user');
    const cmdEl = document.getElementById('cmd');
    const onlineEl = document.getElementById('online');
    const CAP = 100, FUZZY = 5000, PREFIX = 'chat-';

    function store(k, v){ try{ localStorage.setItem(k, v); }catch(_){} }
    function load(k){ try{ return localStorage.getItem(k); }catch(_){ return null } }
    let uid = load('uid');
    if(!uid || uid.length < 8){ uid = (crypto.randomUUID && crypto.randomUUID()) || (Math.random().toString(36).slice(2) + Date.now().toString(36)); store('uid', uid); }
    userEl.value = load('nick') || '';
    userEl.addEventListener('input', () => store('nick', userEl.value));

    function loadRoom(room){
      try{ const raw = localStorage.getItem('room:' + room); return raw ? JSON.parse(raw) : []; }
      catch(_){ return []; }
    }
    function saveRoom(room, list){
      if(list.length > CAP) list = list.slice(list.length - CAP);
      store('room:' + room, JSON.stringify(list));
      return list;
    }
    // Same merge order as the Go reconciler: clientId replace, id
    // discard, fuzzy discard, append.
    function reconcile(list, m){
      for(let i = 0; i < list.length; i++){
        if(m.clientId && list[i].clientId === m.clientId){ list[i] = Object.assign({}, m, {local:false}); return saveRoom(room, list); }
      }
      if(m.id && list.some(e => e.id === m.id)) return saveRoom(room, list);
      if(list.some(e => e.username === m.username && e.message === m.message && Math.abs((e.timestamp||0) - (m.timestamp||0)) <= FUZZY)) return saveRoom(room, list);
      list.push(m);
      return saveRoom(room, list);
    }
    function render(list){
      logEl.innerHTML = '';
      for(const m of list){
        const div = document.createElement('div');
        div.className = 'line' + (m.local ? ' pending' : '');
        const ts = new Date(m.timestamp || Date.now()).toLocaleTimeString([], {hour12:false});
        div.innerHTML = '<span class="ts">[' + ts + ']</span> <span class="usr">' + esc(m.username || 'anonymous') + '</span>: ' + esc(m.message || '');
        logEl.appendChild(div);
      }
      logEl.scrollTop = logEl.scrollHeight;
    }
    function esc(s){ return String(s).replace(/[&<>"]/g, c => ({'&':'&amp;','<':'&lt;','>':'&gt;','"':'&quot;'}[c])); }

    let room = null, msgs = [], ws = null;
    function ingest(m){
      if(!m.username) m.username = 'anonymous';
      if(!m.timestamp) m.timestamp = Date.now();
      msgs = reconcile(msgs, m);
      render(msgs);
    }
    function join(next){
      if(ws){ ws.onmessage = null; ws.close(); ws = null; }
      room = next;
      msgs = loadRoom(room);
      render(msgs);
      const proto = location.protocol === 'https:' ? 'wss' : 'ws';
      const sock = new WebSocket(proto + '://' + location.host + '/ws?channel=' + encodeURIComponent(PREFIX + room));
      sock.onmessage = (e) => {
        let ev; try{ ev = JSON.parse(e.data); }catch(_){ return; }
        if(ev.type === 'message') ingest(ev.data || {});
        else if(ev.type === 'presence') onlineEl.textContent = String((ev.data && ev.data.online) || 0);
        else if(ev.type === 'push'){
          const n = (ev.data && ev.data.notification) || {};
          if(Notification && Notification.permission === 'granted')
            new Notification(n.title || 'New message', {body: n.body || 'You have a new message', icon: n.icon || '/icon.png'});
        }
      };
      ws = sock;
    }
    roomEl.addEventListener('change', () => { const r = roomEl.value.trim(); if(r && r !== room) join(r); });

    async function send(){
      const text = cmdEl.value.trim();
      if(!text) return;
      cmdEl.value = '';
      const m = { clientId: uid + '-' + Date.now().toString(36) + Math.random().toString(36).slice(2,6),
                  userId: uid, username: userEl.value.trim() || 'anonymous',
                  message: text, timestamp: Date.now(), local: true };
      ingest(m);
      try{
        const resp = await fetch('/api/messages', {method:'POST', headers:{'Content-Type':'application/json'},
          body: JSON.stringify({clientId:m.clientId, userId:m.userId, username:m.username, message:m.message, timestamp:m.timestamp, room:room})});
        if(resp.ok) ingest(await resp.json());
        else console.error('send failed:', resp.status);
      }catch(err){ console.error('send failed:', err); }
    }
    cmdEl.addEventListener('keydown', e => {
      if (e.isComposing || e.keyCode === 229) return;
      if (e.key === 'Enter') { e.preventDefault(); send(); }
    });
    if(window.Notification && Notification.permission === 'default') Notification.requestPermission();
    join(roomEl.value.trim() || 'general');
    setTimeout(() => cmdEl.focus(), 0);
  </script>
</body>
</html>`))
