package callback

// successHTML is shown after a callback was captured.
const successHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Authorization Complete - oksocial</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; display: flex; justify-content: center; align-items: center; min-height: 100vh; margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem; border-radius: 8px; box-shadow: 0 4px 12px rgba(0,0,0,0.1); max-width: 420px; }
        h1 { color: #10b981; font-size: 1.4rem; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Authorization complete</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
    <script>setTimeout(function () { window.close(); }, 5000);</script>
</body>
</html>`

// failureHTML is shown when the provider redirected with an error parameter.
const failureHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Authorization Failed - oksocial</title>
</head>
<body>
    <h1>Authorization failed</h1>
    <p>The provider returned: <code>{{ERROR}}</code></p>
    <p>Return to the terminal for details.</p>
</body>
</html>`

// fragmentRelayHTML re-issues the request with the URL fragment moved into the query string.
const fragmentRelayHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Completing Authorization - oksocial</title>
</head>
<body>
    <p>Completing authorization...</p>
    <script>
        if (window.location.hash.length > 1) {
            window.location.replace(window.location.pathname + "?" + window.location.hash.substring(1));
        } else {
            document.body.innerHTML = "<p>No authorization parameters received.</p>";
        }
    </script>
</body>
</html>`
