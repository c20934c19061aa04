// controllers/scheme.go
package controllers

import (
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"

	arlv1alpha1 "github.com/agent-runtime/arl/api/v1alpha1"
)

var (
	// Scheme for use by all controllers. Registers required types for client.
	Scheme = runtime.NewScheme()
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(Scheme))
	utilruntime.Must(arlv1alpha1.AddToScheme(Scheme))
}