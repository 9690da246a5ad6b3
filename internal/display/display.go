package display

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vistaml/vista/internal/environ"
)

// Renderer renders the App into a notebook output cell.
type Renderer interface {
	Render(ctx environ.Context, port, height int) error
}

const iframeTemplate = `<iframe src="http://localhost:%d/?notebook=true" width="100%%" height="%d" frameborder="0"></iframe>`

// The Colab VM is not directly exposed to the network; the output frame
// must route through the kernel's port-forwarding proxy, so the frame is
// built by a script rather than a plain iframe tag.
const colabTemplate = `<script>
	(async () => {
		const url = new URL(await google.colab.kernel.proxyPort(%PORT%, {'cache': true}));
		url.searchParams.set('vistaColab', 'true');
		url.searchParams.set('notebook', 'true');
		const iframe = document.createElement('iframe');
		iframe.src = url;
		iframe.setAttribute('width', '100%');
		iframe.setAttribute('height', '%HEIGHT%');
		iframe.setAttribute('frameborder', 0);
		document.body.appendChild(iframe);
	})();
</script>`

// CellRenderer writes notebook display payloads to an output cell sink.
type CellRenderer struct {
	// Out receives the rendered cell content. Defaults to stdout, where a
	// kernel bridge picks it up.
	Out io.Writer
}

// Render implements Renderer. IPython contexts get an inline iframe pointed
// directly at the local server; Colab contexts get a proxy-port script with
// the Colab marker flags in the resulting URL. Failures are returned to the
// caller; there are no retries.
func (r *CellRenderer) Render(ctx environ.Context, port, height int) error {
	out := r.Out
	if out == nil {
		out = os.Stdout
	}

	switch ctx {
	case environ.IPython:
		_, err := fmt.Fprintln(out, fmt.Sprintf(iframeTemplate, port, height))
		return err
	case environ.Colab:
		script := strings.NewReplacer(
			"%PORT%", fmt.Sprintf("%d", port),
			"%HEIGHT%", fmt.Sprintf("%d", height),
		).Replace(colabTemplate)
		_, err := fmt.Fprintln(out, script)
		return err
	default:
		return fmt.Errorf("cannot render the App outside of a notebook context")
	}
}
