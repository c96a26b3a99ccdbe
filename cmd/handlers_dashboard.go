package main

import (
	"github.com/gin-gonic/gin"
)

// handleDashboard 管理员控制台：上传文档、查看调用记录、刷新模型
func handleDashboard() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Data(200, "text/html; charset=utf-8", []byte(DashboardHTML))
	}
}

// DashboardHTML 管理员控制台页面，数据全部来自 /v1/status 和 /admin/* 接口
const DashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>docqa Admin Console</title>
    <script src="https://cdn.tailwindcss.com"></script>
    <link rel="stylesheet" href="https://cdnjs.cloudflare.com/ajax/libs/font-awesome/6.4.0/css/all.min.css">
    <style>
        .modal-backdrop {
            backdrop-filter: blur(4px);
            background-color: rgba(0, 0, 0, 0.5);
        }
        .fade-in {
            animation: fadeIn 0.3s ease-in;
        }
        @keyframes fadeIn {
            from { opacity: 0; transform: translateY(-10px); }
            to { opacity: 1; transform: translateY(0); }
        }
    </style>
</head>
<body class="bg-gray-100 min-h-screen">
    <!-- Login Modal -->
    <div id="loginModal" class="fixed inset-0 z-50 flex items-center justify-center modal-backdrop">
        <div class="bg-white rounded-lg shadow-xl w-full max-w-md mx-4 fade-in">
            <div class="px-6 py-4 border-b">
                <h3 class="text-xl font-bold flex items-center gap-2">
                    <i class="fas fa-shield-alt text-blue-600"></i>
                    Admin Authentication
                </h3>
            </div>
            <form id="loginForm" class="p-6">
                <label class="block text-sm font-medium text-gray-700 mb-2">Admin Password</label>
                <input type="password" id="adminKeyInput" required
                       class="w-full px-3 py-2 border rounded-lg mb-4 focus:ring-2 focus:ring-blue-500 focus:outline-none">
                <button type="submit" class="w-full bg-blue-600 text-white rounded-lg py-2 hover:bg-blue-700 transition">Login</button>
            </form>
        </div>
    </div>

    <header class="bg-gradient-to-r from-blue-600 to-purple-600 text-white shadow-lg">
        <div class="container mx-auto px-6 py-6 flex items-center justify-between">
            <div>
                <h1 class="text-3xl font-bold flex items-center gap-3"><i class="fas fa-file-alt"></i> docqa Admin Console</h1>
                <p class="mt-2 text-blue-100">Reference document, model resolution and call history</p>
            </div>
            <div class="flex items-center gap-4">
                <button onclick="loadDashboard()" class="bg-white/20 hover:bg-white/30 px-4 py-2 rounded-lg transition"><i class="fas fa-sync-alt"></i> Refresh</button>
                <button onclick="refreshModels()" class="bg-green-500 hover:bg-green-600 px-4 py-2 rounded-lg transition"><i class="fas fa-robot"></i> Re-resolve Models</button>
                <button onclick="logout()" class="bg-red-500 hover:bg-red-600 px-4 py-2 rounded-lg transition"><i class="fas fa-sign-out-alt"></i> Logout</button>
            </div>
        </div>
    </header>

    <main class="container mx-auto px-6 py-8">
        <div class="grid grid-cols-1 md:grid-cols-4 gap-6 mb-8">
            <div class="bg-white rounded-lg shadow p-6"><p class="text-sm text-gray-500">Model</p><p id="statModel" class="text-2xl font-bold">-</p></div>
            <div class="bg-white rounded-lg shadow p-6"><p class="text-sm text-gray-500">Document</p><p id="statDocument" class="text-2xl font-bold">-</p></div>
            <div class="bg-white rounded-lg shadow p-6"><p class="text-sm text-gray-500">Credentials available</p><p id="statCredentials" class="text-2xl font-bold">-</p></div>
            <div class="bg-white rounded-lg shadow p-6"><p class="text-sm text-gray-500">Transport</p><p id="statTransport" class="text-2xl font-bold">-</p></div>
        </div>

        <div class="bg-white rounded-lg shadow p-6 mb-8">
            <h2 class="text-lg font-bold mb-4"><i class="fas fa-upload text-blue-600"></i> Reference Document</h2>
            <p id="documentInfo" class="text-sm text-gray-600 mb-4">No document uploaded.</p>
            <form id="uploadForm" class="flex items-center gap-4">
                <input type="file" id="documentFile" accept=".pdf,.txt,text/plain,application/pdf" required class="text-sm">
                <button type="submit" class="bg-blue-600 text-white rounded-lg px-4 py-2 hover:bg-blue-700 transition">Replace Document</button>
            </form>
        </div>

        <div class="bg-white rounded-lg shadow p-6 mb-8">
            <h2 class="text-lg font-bold mb-4"><i class="fas fa-chart-bar text-purple-600"></i> Model Statistics</h2>
            <table class="w-full text-sm">
                <thead><tr class="text-left text-gray-500"><th>Model</th><th>Requests</th><th>Success</th><th>Errors</th><th>Quota</th><th>Avg latency</th></tr></thead>
                <tbody id="statsBody"></tbody>
            </table>
        </div>

        <div class="bg-white rounded-lg shadow p-6">
            <h2 class="text-lg font-bold mb-4"><i class="fas fa-history text-gray-600"></i> Recent Calls</h2>
            <table class="w-full text-sm">
                <thead><tr class="text-left text-gray-500"><th>Time</th><th>Model</th><th>Credential</th><th>Attempt</th><th>Outcome</th><th>Status</th><th>Latency</th></tr></thead>
                <tbody id="attemptsBody"></tbody>
            </table>
        </div>
    </main>

    <div id="toast" class="hidden fixed bottom-6 right-6 bg-white shadow-lg rounded-lg px-4 py-3 flex items-center gap-3">
        <i id="toastIcon"></i><span id="toastMessage"></span>
    </div>

    <script>
        let adminKey = localStorage.getItem('docqa_admin_key');

        document.addEventListener('DOMContentLoaded', function() {
            document.getElementById('loginForm').addEventListener('submit', handleLogin);
            document.getElementById('uploadForm').addEventListener('submit', handleUpload);
            if (adminKey) {
                document.getElementById('loginModal').classList.add('hidden');
                loadDashboard();
            }
        });

        async function fetchAPI(url, options = {}) {
            const headers = Object.assign({ 'Authorization': 'Bearer ' + adminKey }, options.headers || {});
            const response = await fetch(url, Object.assign({}, options, { headers }));
            if (response.status === 401) {
                document.getElementById('loginModal').classList.remove('hidden');
                throw new Error('Invalid admin password');
            }
            const data = await response.json().catch(() => ({}));
            return { response, data };
        }

        async function handleLogin(e) {
            e.preventDefault();
            adminKey = document.getElementById('adminKeyInput').value.trim();
            try {
                const result = await fetchAPI('/admin/attempts?limit=1');
                if (result.response.ok) {
                    localStorage.setItem('docqa_admin_key', adminKey);
                    document.getElementById('loginModal').classList.add('hidden');
                    loadDashboard();
                }
            } catch (error) {
                adminKey = null;
                showToast(error.message, 'error');
            }
        }

        function logout() {
            localStorage.removeItem('docqa_admin_key');
            adminKey = null;
            location.reload();
        }

        async function loadDashboard() {
            try {
                const status = await (await fetch('/v1/status')).json();
                setText('statModel', status.model || '(not resolved yet)');
                setText('statDocument', status.document_ready ? 'Ready' : 'Missing');
                setText('statCredentials', status.available_credentials + ' / ' + status.credentials);
                setText('statTransport', status.transport);

                const doc = await fetchAPI('/admin/document');
                if (doc.response.ok) {
                    const d = doc.data.data;
                    setText('documentInfo', d.filename + ' (' + d.mime_type + ', ' + d.size + ' bytes, updated ' + d.updated_at + ')');
                } else {
                    setText('documentInfo', 'No document uploaded.');
                }

                const attempts = await fetchAPI('/admin/attempts?limit=50');
                renderRows('statsBody', attempts.data.stats || [], s => [
                    s.model_name, s.total_requests, s.success, s.error, s.quota_errors,
                    (s.total_requests ? Math.round(s.total_latency / s.total_requests) : 0) + 'ms'
                ]);
                renderRows('attemptsBody', attempts.data.attempts || [], a => [
                    new Date(a.created_at).toLocaleTimeString(), a.model, a.credential, a.attempt,
                    a.outcome, a.status_code, a.duration + 'ms'
                ]);
            } catch (error) {
                showToast(error.message || 'Failed to load dashboard', 'error');
            }
        }

        async function handleUpload(e) {
            e.preventDefault();
            const file = document.getElementById('documentFile').files[0];
            if (!file) return;
            const form = new FormData();
            form.append('file', file);
            try {
                const result = await fetchAPI('/admin/document', { method: 'PUT', body: form });
                if (result.response.ok) {
                    showToast('Document replaced', 'success');
                    loadDashboard();
                } else {
                    showToast(result.data?.error?.message || 'Upload failed', 'error');
                }
            } catch (error) {
                showToast(error.message, 'error');
            }
        }

        async function refreshModels() {
            try {
                const result = await fetchAPI('/admin/models/refresh', { method: 'POST' });
                showToast(result.data.message + ': ' + result.data.data.model, 'success');
                loadDashboard();
            } catch (error) {
                showToast(error.message, 'error');
            }
        }

        function renderRows(id, items, columns) {
            const body = document.getElementById(id);
            body.replaceChildren();
            for (const item of items) {
                const tr = document.createElement('tr');
                tr.className = 'border-t';
                for (const value of columns(item)) {
                    const td = document.createElement('td');
                    td.className = 'py-1';
                    td.textContent = value;
                    tr.appendChild(td);
                }
                body.appendChild(tr);
            }
        }

        function setText(id, text) {
            document.getElementById(id).textContent = text;
        }

        function showToast(message, type) {
            document.getElementById('toastMessage').textContent = message;
            document.getElementById('toastIcon').className = type === 'success'
                ? 'fas fa-check-circle text-green-500 text-xl'
                : 'fas fa-exclamation-circle text-red-500 text-xl';
            const toast = document.getElementById('toast');
            toast.classList.remove('hidden');
            setTimeout(() => toast.classList.add('hidden'), 3000);
        }
    </script>
</body>
</html>
`
