package aurora

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/sirupsen/logrus"

	"github.com/fraser-isbester/aurora-advisor/pkg/config"
	"github.com/fraser-isbester/aurora-advisor/pkg/envelope"
	"github.com/fraser-isbester/aurora-advisor/pkg/evalerr"
)

// maxInstanceTypesPerCall is the DescribeInstanceTypes request limit
const maxInstanceTypesPerCall = 100

// RDSAPI is the subset of the RDS client the catalog client uses
type RDSAPI interface {
	DescribeDBInstances(ctx context.Context, in *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
	DescribeDBClusters(ctx context.Context, in *rds.DescribeDBClustersInput, optFns ...func(*rds.Options)) (*rds.DescribeDBClustersOutput, error)
	DescribeGlobalClusters(ctx context.Context, in *rds.DescribeGlobalClustersInput, optFns ...func(*rds.Options)) (*rds.DescribeGlobalClustersOutput, error)
	DescribeOrderableDBInstanceOptions(ctx context.Context, in *rds.DescribeOrderableDBInstanceOptionsInput, optFns ...func(*rds.Options)) (*rds.DescribeOrderableDBInstanceOptionsOutput, error)
	DescribeDBParameters(ctx context.Context, in *rds.DescribeDBParametersInput, optFns ...func(*rds.Options)) (*rds.DescribeDBParametersOutput, error)
}

// EC2API is the subset of the EC2 client the catalog client uses
type EC2API interface {
	DescribeInstanceTypes(ctx context.Context, in *ec2.DescribeInstanceTypesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceTypesOutput, error)
}

// CatalogClient reads instance, cluster, class and parameter metadata
type CatalogClient struct {
	rds    RDSAPI
	ec2    EC2API
	region string
	log    *logrus.Entry
}

// NewCatalogClient creates a new catalog client
func NewCatalogClient(rdsAPI RDSAPI, ec2API EC2API, region string, log *logrus.Entry) *CatalogClient {
	return &CatalogClient{
		rds:    rdsAPI,
		ec2:    ec2API,
		region: region,
		log:    log.WithField("component", "catalog"),
	}
}

// GetInstance retrieves an instance together with its cluster topology
func (c *CatalogClient) GetInstance(ctx context.Context, instanceID string) (*config.InstanceInfo, error) {
	out, err := c.rds.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(instanceID),
	})
	if err != nil {
		return nil, wrap("DescribeDBInstances", "catalog", err)
	}
	if len(out.DBInstances) == 0 {
		return nil, evalerr.Malformed("DescribeDBInstances", "catalog", "instance %s not found", instanceID)
	}
	db := out.DBInstances[0]

	info := &config.InstanceInfo{
		ID:            aws.ToString(db.DBInstanceIdentifier),
		ResourceID:    aws.ToString(db.DbiResourceId),
		ClusterID:     aws.ToString(db.DBClusterIdentifier),
		Class:         aws.ToString(db.DBInstanceClass),
		Engine:        aws.ToString(db.Engine),
		EngineVersion: aws.ToString(db.EngineVersion),
		Region:        c.region,
		Role:          config.RoleWriter,
		WriterID:      aws.ToString(db.DBInstanceIdentifier),
		StorageType:   aws.ToString(db.StorageType),
		Serverless:    aws.ToString(db.DBInstanceClass) == config.ServerlessClass,
		PIEnabled:     aws.ToBool(db.PerformanceInsightsEnabled),
	}
	if len(db.DBParameterGroups) > 0 {
		info.ParameterGroup = aws.ToString(db.DBParameterGroups[0].DBParameterGroupName)
	}
	if info.ResourceID == "" || info.Class == "" {
		return nil, evalerr.Malformed("DescribeDBInstances", "catalog", "instance %s lacks resource id or class", instanceID)
	}

	if info.ClusterID == "" {
		return info, nil
	}
	if err := c.fillTopology(ctx, info); err != nil {
		return nil, err
	}
	return info, nil
}

// fillTopology sets role, writer, sibling count and remote cluster count
func (c *CatalogClient) fillTopology(ctx context.Context, info *config.InstanceInfo) error {
	cluster, err := c.describeCluster(ctx, info.ClusterID)
	if err != nil {
		return err
	}

	for _, m := range cluster.DBClusterMembers {
		id := aws.ToString(m.DBInstanceIdentifier)
		if aws.ToBool(m.IsClusterWriter) {
			info.WriterID = id
		}
		if id != info.ID {
			info.OtherInstances++
		}
	}
	if info.WriterID != info.ID {
		info.Role = config.RoleReader
	}
	if st := aws.ToString(cluster.StorageType); st != "" {
		info.StorageType = st
	}

	if cluster.DBClusterArn == nil {
		return nil
	}
	remote, err := c.remoteClusters(ctx, aws.ToString(cluster.DBClusterArn))
	if err != nil {
		return err
	}
	info.RemoteClusters = remote
	return nil
}

func (c *CatalogClient) describeCluster(ctx context.Context, clusterID string) (*rdstypes.DBCluster, error) {
	out, err := c.rds.DescribeDBClusters(ctx, &rds.DescribeDBClustersInput{
		DBClusterIdentifier: aws.String(clusterID),
	})
	if err != nil {
		return nil, wrap("DescribeDBClusters", "catalog", err)
	}
	if len(out.DBClusters) == 0 {
		return nil, evalerr.Malformed("DescribeDBClusters", "catalog", "cluster %s not found", clusterID)
	}
	return &out.DBClusters[0], nil
}

// remoteClusters counts the other members of the global database clusterARN belongs to
func (c *CatalogClient) remoteClusters(ctx context.Context, clusterARN string) (int, error) {
	p := rds.NewDescribeGlobalClustersPaginator(c.rds, &rds.DescribeGlobalClustersInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, wrap("DescribeGlobalClusters", "catalog", err)
		}
		for _, gc := range page.GlobalClusters {
			for _, m := range gc.GlobalClusterMembers {
				if aws.ToString(m.DBClusterArn) == clusterARN {
					return len(gc.GlobalClusterMembers) - 1, nil
				}
			}
		}
	}
	return 0, nil
}

// ClusterMembers returns every instance of a cluster with its topology
func (c *CatalogClient) ClusterMembers(ctx context.Context, clusterID string) ([]*config.InstanceInfo, error) {
	cluster, err := c.describeCluster(ctx, clusterID)
	if err != nil {
		return nil, err
	}

	members := make([]*config.InstanceInfo, 0, len(cluster.DBClusterMembers))
	for _, m := range cluster.DBClusterMembers {
		info, err := c.GetInstance(ctx, aws.ToString(m.DBInstanceIdentifier))
		if err != nil {
			return nil, err
		}
		members = append(members, info)
	}
	return members, nil
}

// ListInstanceClasses lists the provisioned classes orderable for an engine version
func (c *CatalogClient) ListInstanceClasses(ctx context.Context, engine, version string) ([]string, error) {
	p := rds.NewDescribeOrderableDBInstanceOptionsPaginator(c.rds, &rds.DescribeOrderableDBInstanceOptionsInput{
		Engine:        aws.String(engine),
		EngineVersion: aws.String(version),
		Vpc:           aws.Bool(true),
	})

	seen := make(map[string]bool)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, wrap("DescribeOrderableDBInstanceOptions", "catalog", err)
		}
		for _, o := range page.OrderableDBInstanceOptions {
			class := aws.ToString(o.DBInstanceClass)
			if class == "" || class == config.ServerlessClass {
				continue
			}
			seen[class] = true
		}
	}

	classes := make([]string, 0, len(seen))
	for class := range seen {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes, nil
}

// InstanceHardware returns the hardware of each class, keyed by class name
func (c *CatalogClient) InstanceHardware(ctx context.Context, classes []string) (map[string]envelope.HardwareSpec, error) {
	specs := make(map[string]envelope.HardwareSpec, len(classes))
	for start := 0; start < len(classes); start += maxInstanceTypesPerCall {
		chunk := classes[start:min(start+maxInstanceTypesPerCall, len(classes))]
		types := make([]ec2types.InstanceType, 0, len(chunk))
		for _, class := range chunk {
			types = append(types, ec2types.InstanceType(config.EC2InstanceType(class)))
		}

		p := ec2.NewDescribeInstanceTypesPaginator(c.ec2, &ec2.DescribeInstanceTypesInput{InstanceTypes: types})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				return nil, wrap("DescribeInstanceTypes", "catalog", err)
			}
			for _, it := range page.InstanceTypes {
				specs["db."+string(it.InstanceType)] = hardwareSpec(it)
			}
		}
	}

	for _, class := range classes {
		if _, ok := specs[class]; !ok {
			c.log.WithField("class", class).Debug("No EC2 hardware description for instance class")
		}
	}
	return specs, nil
}

// hardwareSpec converts an EC2 instance type description
func hardwareSpec(it ec2types.InstanceTypeInfo) envelope.HardwareSpec {
	spec := envelope.HardwareSpec{
		CurrentGeneration: aws.ToBool(it.CurrentGeneration),
	}
	if it.VCpuInfo != nil {
		spec.VCPUs = int(aws.ToInt32(it.VCpuInfo.DefaultVCpus))
	}
	if it.MemoryInfo != nil {
		spec.MemoryGB = float64(aws.ToInt64(it.MemoryInfo.SizeInMiB)) / 1024
	}
	if it.NetworkInfo != nil {
		spec.NetworkPerformance = aws.ToString(it.NetworkInfo.NetworkPerformance)
		for _, card := range it.NetworkInfo.NetworkCards {
			spec.BaselineBandwidthGbps += aws.ToFloat64(card.BaselineBandwidthInGbps)
			spec.PeakBandwidthGbps += aws.ToFloat64(card.PeakBandwidthInGbps)
		}
	}
	if it.EbsInfo != nil && it.EbsInfo.EbsOptimizedInfo != nil {
		ebs := it.EbsInfo.EbsOptimizedInfo
		spec.EBSBaselineMBps = aws.ToFloat64(ebs.BaselineThroughputInMBps)
		spec.EBSMaxMBps = aws.ToFloat64(ebs.MaximumThroughputInMBps)
		spec.EBSBaselineIOPS = int(aws.ToInt32(ebs.BaselineIops))
		spec.EBSMaxIOPS = int(aws.ToInt32(ebs.MaximumIops))
	}
	if it.InstanceStorageInfo != nil {
		spec.InstanceStorageGB = float64(aws.ToInt64(it.InstanceStorageInfo.TotalSizeInGB))
	}
	return spec
}

// ParameterValue returns the raw value of a parameter, which may be a formula.
// A parameter without a value is reported as catalog drift.
func (c *CatalogClient) ParameterValue(ctx context.Context, group, name string) (string, error) {
	p := rds.NewDescribeDBParametersPaginator(c.rds, &rds.DescribeDBParametersInput{
		DBParameterGroupName: aws.String(group),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return "", wrap("DescribeDBParameters", "catalog", err)
		}
		for _, param := range page.Parameters {
			if aws.ToString(param.ParameterName) != name {
				continue
			}
			if param.ParameterValue == nil {
				return "", evalerr.Malformed("DescribeDBParameters", "catalog",
					"parameter %s in group %s has no value", name, group)
			}
			return *param.ParameterValue, nil
		}
	}
	return "", evalerr.Malformed("DescribeDBParameters", "catalog",
		"parameter %s not found in group %s", name, group)
}
