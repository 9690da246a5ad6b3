package session

const desktopMessage = "Desktop App launched."

const webMessage = "App launched. Point your web browser to http://localhost:%d"

const notebookMessage = "Session launched. Run session.Show() to open the App in a cell output."

const remoteInstructions = `You have launched a remote App on port %d. To connect to this App from
another machine, issue the following command:

vista connect --destination [<username>@]<hostname> --port %d

where [<username>@]<hostname> refers to your current machine. Alternatively,
you can manually configure port forwarding on another machine as follows:

ssh -N -L 5151:127.0.0.1:%d [<username>@]<hostname>

The App can then be viewed in your browser at http://localhost:5151.`

const waitInstructions = `A session appears to have terminated shortly after it was started. If you
intended to start an App instance or a remote session from a script, you
should call session.Wait() to keep the session (and the script) alive.`
