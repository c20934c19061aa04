// Copyright 2026 The Kubernetes Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"

	arlv1alpha1 "github.com/agent-runtime/arl/api/v1alpha1"
	"github.com/agent-runtime/arl/controllers"
	"github.com/agent-runtime/arl/internal/metrics"
	"github.com/agent-runtime/arl/internal/sidecar"
)

// autoReadySandboxClient wraps the fake client so every created Sandbox is
// immediately marked Ready with a synthetic pod identity, standing in for
// the Sandbox controller's adoption reconcile the gateway doesn't run in
// these tests.
func autoReadySandboxClient(objs ...client.Object) client.Client {
	return fake.NewClientBuilder().
		WithScheme(controllers.Scheme).
		WithStatusSubresource(&arlv1alpha1.Sandbox{}, &arlv1alpha1.Task{}).
		WithObjects(objs...).
		WithInterceptorFuncs(interceptor.Funcs{
			Create: func(ctx context.Context, c client.WithWatch, obj client.Object, opts ...client.CreateOption) error {
				if err := c.Create(ctx, obj, opts...); err != nil {
					return err
				}
				sbx, ok := obj.(*arlv1alpha1.Sandbox)
				if !ok {
					return nil
				}
				sbx.Status.Phase = arlv1alpha1.SandboxPhaseReady
				sbx.Status.PodName = sbx.Name + "-pod"
				sbx.Status.PodIP = "10.0.0.5"
				return c.Status().Update(ctx, sbx)
			},
		}).
		Build()
}

func newTestGateway(objs ...client.Object) (*Gateway, *sidecar.Fake) {
	f := sidecar.NewFake()
	c := autoReadySandboxClient(objs...)
	gw := New(c, sidecar.NewFakeDialer(f), DefaultConfig(), metrics.NewNoOp(), zap.NewNop().Sugar())
	gw.Config.SandboxReadyTimeout = 2 * time.Second
	return gw, f
}
