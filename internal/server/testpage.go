package server

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>chatnest WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 200px; padding: 5px; margin-right: 10px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        button:disabled { background-color: #9bbccd; cursor: default; }
        .row { margin: 8px 0; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
        #typing { color: gray; font-style: italic; height: 1.2em; }
    </style>
</head>
<body>
    <h1>chatnest WebSocket Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div class="row">
        <input type="text" id="userInput" placeholder="User id">
        <input type="text" id="tokenInput" placeholder="Token (optional)">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>

    <div class="row">
        <input type="text" id="roomInput" placeholder="Room id" disabled>
        <button id="joinButton" onclick="joinRoom()" disabled>Join room</button>
        <button id="leaveButton" onclick="leaveRoom()" disabled>Leave room</button>
        <button id="awayButton" onclick="toggleAway()" disabled>Go away</button>
    </div>

    <div class="row">
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <div id="typing"></div>
    <div id="messages"></div>

    <script>
        let ws = null;
        let room = null;
        let away = false;
        let typingTimer = null;
        const typists = new Set();
        const messagesDiv = document.getElementById('messages');
        const typingDiv = document.getElementById('typing');
        const userInput = document.getElementById('userInput');
        const tokenInput = document.getElementById('tokenInput');
        const roomInput = document.getElementById('roomInput');
        const messageInput = document.getElementById('messageInput');
        const statusDiv = document.getElementById('status');
        const connectButton = document.getElementById('connectButton');
        const controls = ['roomInput', 'joinButton', 'leaveButton', 'awayButton', 'messageInput', 'sendButton']
            .map(id => document.getElementById(id));

        function addLine(text, color) {
            const line = document.createElement('div');
            line.style.margin = '5px 0';
            line.style.color = color || 'gray';
            line.textContent = text;
            messagesDiv.appendChild(line);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function send(type, data) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({ type: type, data: data }));
            }
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected as ' + userInput.value : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            controls.forEach(el => el.disabled = !connected);
            userInput.disabled = connected;
            tokenInput.disabled = connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function renderTyping() {
            typingDiv.textContent = typists.size ? Array.from(typists).join(', ') + ' typing...' : '';
        }

        function handleFrame(frame) {
            const d = frame.data;
            switch (frame.type) {
            case 'receiveMessage':
                addLine('[' + d.chatRoomId + '] ' + d.senderId + ': ' + JSON.stringify(d.message), 'green');
                break;
            case 'typing':
                if (d.isTyping) { typists.add(d.userId); } else { typists.delete(d.userId); }
                renderTyping();
                break;
            case 'presence':
                addLine(d.userId + ' is ' + d.status);
                break;
            case 'onlineUsers':
                addLine('Online: ' + d.join(', '));
                break;
            case 'newChatRoom':
                addLine('New room: ' + JSON.stringify(d.room));
                break;
            case 'messageRead':
                addLine(d.userId + ' read ' + d.messageId);
                break;
            case 'error':
                addLine('Error ' + d.code + ': ' + d.message, 'red');
                break;
            default:
                addLine(JSON.stringify(frame));
            }
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');

            ws.onopen = function() {
                const data = { userId: userInput.value.trim() };
                if (tokenInput.value.trim()) { data.token = tokenInput.value.trim(); }
                send('join', data);
                updateStatus(true);
            };
            ws.onmessage = function(event) { handleFrame(JSON.parse(event.data)); };
            ws.onclose = function() {
                addLine('Connection closed');
                updateStatus(false);
                ws = null;
            };
            ws.onerror = function() { addLine('Connection error', 'red'); };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) { ws.close(); } else { connect(); }
        }

        function joinRoom() {
            room = roomInput.value.trim();
            if (room) { send('joinRoom', { chatRoomId: room }); addLine('Joined ' + room); }
        }

        function leaveRoom() {
            if (room) { send('leaveRoom', { chatRoomId: room }); addLine('Left ' + room); room = null; }
        }

        function toggleAway() {
            away = !away;
            send('setStatus', { status: away ? 'away' : 'online' });
            document.getElementById('awayButton').textContent = away ? 'Back online' : 'Go away';
        }

        function sendMessage() {
            const text = messageInput.value.trim();
            if (text && room) {
                send('sendMessage', { chatRoomId: room, message: { text: text } });
                send('typing', { chatRoomId: room, isTyping: false });
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') { sendMessage(); return; }
            if (!room) { return; }
            if (!typingTimer) { send('typing', { chatRoomId: room, isTyping: true }); }
            clearTimeout(typingTimer);
            typingTimer = setTimeout(function() { typingTimer = null; }, 2000);
        });
    </script>
</body>
</html>`
