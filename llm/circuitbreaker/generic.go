package circuitbreaker

import "context"

// CallWithResult 泛型包装，返回 fn 的结果
//
//	content, err := circuitbreaker.CallWithResult(b, ctx, func(ctx context.Context) (string, error) {
//	    return client.complete(ctx, req)
//	})
func CallWithResult[T any](b *Breaker, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := b.Call(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}
