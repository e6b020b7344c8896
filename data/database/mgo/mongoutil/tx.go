package mongoutil

import (
	"context"

	"PPChat/logger"
	"PPChat/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Tx 多文档写的事务边界。fn 内必须使用传入的 ctx 执行读写。
type Tx interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type mongoTx struct {
	cli *mongo.Client
}

func (m *mongoTx) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	sess, err := m.cli.StartSession()
	if err != nil {
		return errs.WrapMsg(err, "start session")
	}
	defer sess.EndSession(ctx)
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// noopTx 单机 mongod 不支持事务，退化为顺序执行
type noopTx struct{}

func (noopTx) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// NoopTx 内存存储、测试使用
func NoopTx() Tx { return noopTx{} }

// NewMongoTx 副本集或 mongos 才启用事务
func NewMongoTx(ctx context.Context, cli *mongo.Client) (Tx, error) {
	var res struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	if err := cli.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&res); err != nil {
		return nil, errs.WrapMsg(err, "mongo hello")
	}
	if res.SetName == "" && res.Msg != "isdbgrid" {
		logger.Warn("mongo is standalone, multi-document writes run without transactions")
		return noopTx{}, nil
	}
	return &mongoTx{cli: cli}, nil
}
