// Package environ resolves the execution context of the calling process.
//
// The context (plain process, Jupyter kernel, or hosted Colab notebook)
// determines which session actions are legal and how the App is displayed:
// plain processes open a browser tab or desktop App, notebook kernels render
// inline, and Colab notebooks must route through the host's port-forwarding
// proxy.
package environ
