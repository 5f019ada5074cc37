package di

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/appsync-deployer/internal/dao/deploydao"
)

func ProvideDeployDAO(env string, client *dynamodb.Client) *deploydao.DAO {
	return deploydao.New(client, deploydao.TableName(env))
}
